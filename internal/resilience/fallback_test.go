package resilience

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFallbackGroup_PrimaryServes(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{})
	g.AddFallback("deepgram-backup", "deepgram-backup")

	var served string
	if err := g.Execute(func(v string) error { served = v; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "deepgram" {
		t.Errorf("served by %q, want primary", served)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("second", "second")
	g.AddFallback("third", "third")

	var tried []string
	err := g.Execute(func(v string) error {
		tried = append(tried, v)
		if v != "third" {
			return errors.New(v + " down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 3 || tried[0] != "primary" || tried[2] != "third" {
		t.Errorf("tried = %v, want primary, second, third", tried)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("primary", "primary", FallbackConfig{})
	g.AddFallback("backup", "backup")

	err := g.Execute(func(string) error { return errors.New("adapter down") })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	g.AddFallback("backup", "backup")

	// Trip the primary's breaker.
	_ = g.Execute(func(v string) error {
		if v == "primary" {
			return errors.New("primary down")
		}
		return nil
	})

	// The primary must now be bypassed without being called.
	var tried []string
	if err := g.Execute(func(v string) error { tried = append(tried, v); return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(tried) != 1 || tried[0] != "backup" {
		t.Errorf("tried = %v, want only backup", tried)
	}
}

func TestExecuteWithResult_ReturnsValue(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup(3, "primary", FallbackConfig{})
	g.AddFallback("backup", 7)

	got, err := ExecuteWithResult(g, func(v int) (int, error) {
		if v == 3 {
			return 0, errors.New("primary down")
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != 70 {
		t.Errorf("result = %d, want 70 from the backup", got)
	}
}

func TestExecuteWithResult_AllFailWrapsLastError(t *testing.T) {
	t.Parallel()
	g := NewFallbackGroup("only", "only", FallbackConfig{})

	_, err := ExecuteWithResult(g, func(string) (int, error) {
		return 0, errors.New("stream refused")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !strings.Contains(err.Error(), "stream refused") {
		t.Errorf("wrapped error lost the cause: %v", err)
	}
}
