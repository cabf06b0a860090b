// Package mock provides a test double for the asr.Provider interface.
//
// Use Provider in unit tests to verify the audio bytes forwarded to
// recognition and to feed scripted partial/final transcripts without a live
// ASR backend. Sessions expose EmitPartial and EmitFinal so tests control
// exactly when recognition events reach the orchestrator.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxwire/voxwire/pkg/provider/asr"
	"github.com/voxwire/voxwire/pkg/types"
)

// StartCall records a single invocation of StartStream.
type StartCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg asr.StreamConfig
}

// Provider is a mock implementation of asr.Provider. The zero value is ready
// to use; every StartStream call returns a fresh *Session unless StartErr is
// set.
type Provider struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by StartStream instead of a session.
	StartErr error

	// StartCalls records every invocation of StartStream in order.
	StartCalls []StartCall

	// Sessions holds every session handed out, in creation order.
	Sessions []*Session
}

// StartStream records the call and returns a new mock Session.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// OpenSessions returns a snapshot of the sessions handed out so far.
// Thread-safe; use it when polling for a session from another goroutine.
func (p *Provider) OpenSessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.Sessions))
	copy(out, p.Sessions)
	return out
}

// Reset clears all recorded calls and sessions. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = nil
	p.Sessions = nil
}

// Session is a mock implementation of asr.SessionHandle. Transcripts are
// injected by the test via EmitPartial/EmitFinal.
type Session struct {
	mu       sync.Mutex
	closed   bool
	partials chan types.Transcript
	finals   chan types.Transcript

	// SendAudioCalls records every chunk passed to SendAudio.
	SendAudioCalls [][]byte

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error
}

// NewSession returns a mock Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
	}
}

// SendAudio records the chunk. Returns SendAudioErr if set, or an error after
// Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock asr: session is closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Partials returns the partial transcript channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the final transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// EmitPartial delivers an interim transcript to the Partials channel.
func (s *Session) EmitPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- types.Transcript{Text: text}
}

// EmitFinal delivers an authoritative transcript to the Finals channel.
func (s *Session) EmitFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.finals <- types.Transcript{Text: text, IsFinal: true}
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes both transcript channels. Safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// Ensure the mocks implement the asr interfaces at compile time.
var (
	_ asr.Provider      = (*Provider)(nil)
	_ asr.SessionHandle = (*Session)(nil)
)
