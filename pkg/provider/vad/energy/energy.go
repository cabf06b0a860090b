// Package energy implements an amplitude-based vad.Engine.
//
// Each frame is scored by its mean absolute amplitude normalized to [0, 1].
// A sliding window of recent frame classifications smooths the score: speech
// is reported only while voiced frames make up more than windowVoiceRatio of
// the window, which filters out isolated noise spikes without the latency of
// a neural model. Suitable as a default barge-in detector when no external
// VAD service is configured.
package energy

import (
	"errors"
	"fmt"

	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/provider/vad"
)

const (
	// defaultSpeechThreshold is the normalized amplitude above which a single
	// frame counts as voiced.
	defaultSpeechThreshold = 0.05

	// windowFrames is the number of recent frames considered for smoothing.
	windowFrames = 20

	// windowVoiceRatio is the fraction of voiced frames within the window
	// required to classify the stream as speaking.
	windowVoiceRatio = 0.3
)

// Engine creates energy-based VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a new energy Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: SpeechThreshold %v out of range [0, 1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: SilenceThreshold %v must be in [0, SpeechThreshold]", cfg.SilenceThreshold)
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = defaultSpeechThreshold
	}
	return &session{threshold: threshold}, nil
}

// session holds the per-stream smoothing window.
type session struct {
	threshold float64

	// window is a ring of recent frame classifications, true for voiced.
	window [windowFrames]bool
	next   int
	filled int

	speaking bool
	closed   bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session is closed")
	}
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energy: frame length %d is not 16-bit aligned", len(frame))
	}

	score := audio.MeanAbsAmplitude(frame)
	voiced := score > s.threshold

	s.window[s.next] = voiced
	s.next = (s.next + 1) % windowFrames
	if s.filled < windowFrames {
		s.filled++
	}

	voiceCount := 0
	for i := range s.filled {
		if s.window[i] {
			voiceCount++
		}
	}
	nowSpeaking := float64(voiceCount) > windowVoiceRatio*float64(s.filled)

	ev := vad.VADEvent{Probability: score}
	switch {
	case nowSpeaking && !s.speaking:
		ev.Type = vad.VADSpeechStart
	case nowSpeaking && s.speaking:
		ev.Type = vad.VADSpeechContinue
	case !nowSpeaking && s.speaking:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	s.speaking = nowSpeaking
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	if s.closed {
		return
	}
	s.window = [windowFrames]bool{}
	s.next = 0
	s.filled = 0
	s.speaking = false
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// Compile-time interface checks.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)
