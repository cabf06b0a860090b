package session

import (
	"log/slog"

	"github.com/voxwire/voxwire/internal/wire"
	"github.com/voxwire/voxwire/pkg/provider/vad"
)

// bargeInGate detects user speech during assistant playback. It evaluates
// every inbound audio frame while the turn state machine is in thinking or
// speaking; the state machine driver consults it and never lets it fire in
// any other phase.
//
// Detection prefers a configured VAD session (which scores the PCM itself)
// over the client's coarse energy byte. Either way, a frame counts as voiced
// only when the client's silence hint is clear, and the gate fires after a
// configured number of consecutive voiced frames — the dwell — to filter
// clicks and echo spikes.
//
// The gate runs on the state machine driver goroutine and needs no locking.
type bargeInGate struct {
	detector  vad.SessionHandle // nil = flag-energy fallback
	threshold float64           // normalized [0,1] energy threshold for the fallback
	dwell     int

	run int
	log *slog.Logger
}

func newBargeInGate(detector vad.SessionHandle, threshold float64, dwell int, log *slog.Logger) *bargeInGate {
	if dwell < 1 {
		dwell = 1
	}
	return &bargeInGate{detector: detector, threshold: threshold, dwell: dwell, log: log}
}

// observe scores one frame and reports whether barge-in fires. On firing the
// dwell counter resets so the next detection starts fresh.
func (g *bargeInGate) observe(f wire.InboundAudioFrame) bool {
	if f.Flags.SilenceHint() {
		g.run = 0
		return false
	}

	voiced := g.voiced(f)
	if !voiced {
		g.run = 0
		return false
	}

	g.run++
	if g.run < g.dwell {
		return false
	}
	g.run = 0
	return true
}

// voiced classifies a single frame.
func (g *bargeInGate) voiced(f wire.InboundAudioFrame) bool {
	if g.detector != nil {
		ev, err := g.detector.ProcessFrame(f.PCM)
		if err != nil {
			g.log.Warn("vad frame error, falling back to flag energy", "err", err)
			return g.flagVoiced(f)
		}
		return ev.Type == vad.VADSpeechStart || ev.Type == vad.VADSpeechContinue
	}
	return g.flagVoiced(f)
}

// flagVoiced scales the client's coarse energy byte into [0,1] and compares
// it against the threshold.
func (g *bargeInGate) flagVoiced(f wire.InboundAudioFrame) bool {
	return float64(f.Flags.Energy())/255.0 > g.threshold
}

// reset clears the dwell counter and any detector smoothing state. Called at
// turn boundaries and on the client's first-chunk-of-stream bit.
func (g *bargeInGate) reset() {
	g.run = 0
	if g.detector != nil {
		g.detector.Reset()
	}
}

// close releases the detector session, if any.
func (g *bargeInGate) close() {
	if g.detector != nil {
		_ = g.detector.Close()
	}
}
