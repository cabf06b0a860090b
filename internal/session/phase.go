package session

// TurnPhase is the coarse state of a session's turn state machine. Exactly
// one phase is active at any time; all transitions happen on the state
// machine driver goroutine.
type TurnPhase int

const (
	// PhaseIdle: no capture running. Entered at creation, after stop/reset,
	// and after a turn completes normally.
	PhaseIdle TurnPhase = iota

	// PhaseListening: recognition is open and consuming inbound audio.
	PhaseListening

	// PhaseTranscribed: a final transcript arrived; transient, immediately
	// advances to PhaseThinking.
	PhaseTranscribed

	// PhaseThinking: the model is generating; no audio has been emitted yet.
	PhaseThinking

	// PhaseSpeaking: synthesis audio is streaming to the client. Generation
	// may still be running concurrently.
	PhaseSpeaking

	// PhaseInterrupted: transient state while a barge-in or client interrupt
	// cancels the active turn; resolves to PhaseListening.
	PhaseInterrupted

	// PhaseError: a fatal adapter failure; recovers to PhaseIdle if possible.
	PhaseError
)

// String returns the lowercase phase name.
func (p TurnPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseTranscribed:
		return "transcribed"
	case PhaseThinking:
		return "thinking"
	case PhaseSpeaking:
		return "speaking"
	case PhaseInterrupted:
		return "interrupted"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// turnActive reports whether p has a live TurnContext attached.
func (p TurnPhase) turnActive() bool {
	return p == PhaseThinking || p == PhaseSpeaking
}
