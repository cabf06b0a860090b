// Package asr defines the Provider interface for streaming speech recognition
// backends.
//
// An ASR provider wraps a real-time transcription service (e.g., Deepgram,
// Google Speech-to-Text, or a local Whisper server) and exposes a uniform
// push-stream interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio and emits two streams of Transcript
// values — low-latency partials for responsiveness and authoritative finals
// that drive the dialogue turn.
//
// A session is restartable across utterances: after a Final the handle keeps
// accepting audio and will emit Partials and a Final for the next utterance.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package asr

import (
	"context"

	"github.com/voxwire/voxwire/pkg/types"
)

// StreamConfig describes the audio format and recognition hints for a new ASR
// session. Voxwire clients are contractually required to deliver 16 kHz /
// 16-bit / mono, so those are the defaults.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero means 16000.
	SampleRate int

	// Channels is the number of audio channels. Zero means 1 (mono).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// SessionHandle represents an open ASR streaming session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig, with the wire header already stripped.
	// SendAudio is non-blocking apart from the provider's internal buffering;
	// calling it after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Transcript values as the provider makes preliminary guesses. The channel
	// is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the provider has committed to a recognition result. These
	// are the values that complete an utterance and drive a dialogue turn.
	// The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per connected client).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format. The returned SessionHandle is ready to accept audio
	// immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
