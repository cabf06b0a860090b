package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session lifecycle outcomes.
var (
	// ErrSessionClosed is returned when an operation targets a session that
	// has already been torn down.
	ErrSessionClosed = errors.New("session: closed")

	// ErrClientSlow is returned when the client cannot drain outbound PCM
	// within the scheduler's enqueue bound. The session is torn down.
	ErrClientSlow = errors.New("session: client too slow draining audio")

	// ErrIdleTimeout is returned when a session sees no inbound frames for
	// the configured idle window.
	ErrIdleTimeout = errors.New("session: idle timeout")
)

// ErrorKind classifies a session error for recovery-scope decisions. The
// orchestrator alone maps kinds to recovery: per-turn failures return the
// session to listening, per-session failures tear the session down, and the
// process never aborts on a single session's failure.
type ErrorKind int

const (
	// KindClientProtocol: malformed frame, unknown command, audio alignment
	// violation. Reported to the client; the session continues.
	KindClientProtocol ErrorKind = iota

	// KindAdapterTransient: an adapter timed out or failed once. The current
	// turn is cancelled; the session remains.
	KindAdapterTransient

	// KindAdapterFatal: repeated failures of the same adapter. The session is
	// torn down with a terminal error frame.
	KindAdapterFatal

	// KindChannel: a write failure or abnormal close on the client channel.
	// Teardown.
	KindChannel

	// KindInternal: an invariant violation such as an event for an unknown
	// turn. Logged and dropped; the session never crashes on these.
	KindInternal
)

// String returns the snake_case kind name used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindClientProtocol:
		return "client_protocol"
	case KindAdapterTransient:
		return "adapter_transient"
	case KindAdapterFatal:
		return "adapter_fatal"
	case KindChannel:
		return "channel"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a classified session error. Stage names the pipeline stage that
// produced it ("asr", "llm", "tts", "channel").
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("session: %s %s error: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// classify wraps err with a kind and stage. nil in, nil out.
func classify(kind ErrorKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// kindOf extracts the ErrorKind from err, defaulting to KindInternal for
// unclassified errors.
func kindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
