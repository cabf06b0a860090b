package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/asr"
	asrmock "github.com/voxwire/voxwire/pkg/provider/asr/mock"
)

func TestASRFallback_StartStream_PrimarySuccess(t *testing.T) {
	primary := &asrmock.Provider{}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(primary.StartCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.StartCalls))
	}
	if len(secondary.StartCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.StartCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_Failover(t *testing.T) {
	primary := &asrmock.Provider{
		StartErr: errors.New("primary down"),
	}
	secondary := &asrmock.Provider{}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	handle, err := fb.StartStream(context.Background(), asr.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle == nil {
		t.Fatal("handle is nil")
	}
	if len(secondary.StartCalls) != 1 {
		t.Fatalf("secondary called %d times, want 1", len(secondary.StartCalls))
	}
	_ = handle.Close()
}

func TestASRFallback_StartStream_AllFail(t *testing.T) {
	primary := &asrmock.Provider{StartErr: errors.New("primary down")}
	secondary := &asrmock.Provider{StartErr: errors.New("secondary down")}

	fb := NewASRFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.StartStream(context.Background(), asr.StreamConfig{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
