// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to script the audio chunks a synthesis call
// emits and to inspect the text segments that reached it, without a live
// TTS backend. ChunkDelay lets tests exercise first-chunk deadline handling.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxwire/voxwire/pkg/provider/tts"
	"github.com/voxwire/voxwire/pkg/types"
)

// SynthesizeCall records a single invocation of SynthesizeStream.
type SynthesizeCall struct {
	// Voice is the voice profile passed to the call.
	Voice types.VoiceProfile

	mu   sync.Mutex
	text []string
	done bool
}

// Text returns the text segments received so far, in arrival order.
func (c *SynthesizeCall) Text() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.text))
	copy(out, c.text)
	return out
}

// Done reports whether the call's text channel has been closed.
func (c *SynthesizeCall) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Provider is a mock implementation of tts.Provider. The zero value is ready
// to use: SynthesizeStream drains the text channel and emits AudioChunks.
type Provider struct {
	mu sync.Mutex

	// AudioChunks is the scripted PCM emitted per SynthesizeStream call after
	// the first text segment arrives.
	AudioChunks [][]byte

	// ChunkDelay, if set, is slept before each audio chunk is emitted.
	ChunkDelay time.Duration

	// SynthesizeErr, if non-nil, is returned by SynthesizeStream.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every invocation of SynthesizeStream in order.
	SynthesizeCalls []*SynthesizeCall
}

// SynthesizeStream records the call, consumes text until the channel closes,
// then emits the scripted AudioChunks and closes the audio channel. If ctx is
// cancelled the audio channel is closed early.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	call := &SynthesizeCall{Voice: voice}
	p.SynthesizeCalls = append(p.SynthesizeCalls, call)
	chunks := make([][]byte, len(p.AudioChunks))
	copy(chunks, p.AudioChunks)
	delay := p.ChunkDelay
	p.mu.Unlock()

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)

		for {
			select {
			case segment, ok := <-text:
				if !ok {
					call.mu.Lock()
					call.done = true
					call.mu.Unlock()
					emitChunks(ctx, audioCh, chunks, delay)
					return
				}
				call.mu.Lock()
				call.text = append(call.text, segment)
				call.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

func emitChunks(ctx context.Context, out chan<- []byte, chunks [][]byte, delay time.Duration) {
	for _, chunk := range chunks {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		select {
		case out <- cp:
		case <-ctx.Done():
			return
		}
	}
}

// ListVoices returns the scripted voice list.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.ListVoicesResult, nil
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure the mock implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
