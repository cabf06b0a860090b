package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no adapter in a [FallbackGroup] could serve
// the call.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template applied to every adapter added to a
// [FallbackGroup]. The Name field is overwritten per adapter.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// guarded pairs one adapter with its own breaker.
type guarded[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup routes calls to a primary adapter and fails over, in
// registration order, to backups when the primary errors or its breaker is
// open. T is the provider interface of one pipeline stage (asr.Provider,
// llm.Provider, tts.Provider).
//
// FallbackGroup is safe for concurrent use after registration is complete.
type FallbackGroup[T any] struct {
	entries []guarded[T]
	cfg     FallbackConfig
}

// NewFallbackGroup builds a group with primary as the preferred adapter.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.add(primaryName, primary)
	return g
}

// AddFallback registers a backup adapter, tried after all earlier entries.
func (g *FallbackGroup[T]) AddFallback(name string, fallback T) {
	g.add(name, fallback)
}

func (g *FallbackGroup[T]) add(name string, v T) {
	bc := g.cfg.CircuitBreaker
	bc.Name = name
	g.entries = append(g.entries, guarded[T]{name: name, value: v, breaker: NewCircuitBreaker(bc)})
}

// Execute runs fn against each adapter in order until one succeeds. Adapters
// with an open breaker are skipped without being called. When every adapter
// fails the last error is wrapped in [ErrAllFailed].
func (g *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a value.
// It is a free function because methods cannot introduce the result type
// parameter.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		var out R
		err := e.breaker.Execute(func() error {
			var callErr error
			out, callErr = fn(e.value)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("adapter bypassed, breaker open", "adapter", e.name)
		} else {
			slog.Warn("adapter failed, trying next", "adapter", e.name, "err", err)
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
