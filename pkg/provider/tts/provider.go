// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, Google
// Cloud TTS, or a local Piper instance) and presents a uniform streaming
// interface. The primary entry point is SynthesizeStream, which accepts a
// channel of text segments and returns a channel of raw PCM audio bytes as
// they become available — enabling low-latency pipelining between the LLM
// token stream and outbound playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/voxwire/voxwire/pkg/types"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (one per active session turn).
type Provider interface {
	// SynthesizeStream consumes text segments from the text channel and
	// returns a channel that emits raw 16-bit LE mono PCM byte slices as they
	// are synthesised. This design allows the caller to pipe sentence
	// segments directly into synthesis without waiting for the full response
	// text to be available.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. Cancelling ctx must
	// stop synthesis promptly; the orchestrator relies on this for barge-in.
	// The caller must drain the audio channel to avoid blocking the
	// provider's internal goroutines.
	//
	// voice specifies the voice profile to use. Providers should return an
	// error if the requested voice is not available.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
