// Package wire implements the framing of the Voxwire client channel: JSON
// text frames in both directions and the 8-byte-header binary layout of
// inbound microphone audio. Outbound audio is raw headerless PCM and needs no
// codec — it is delimited on the wire by tts_start/tts_end/tts_stop frames.
//
// The codec is a pure adapter: it parses, validates, and hands off in O(1)
// per frame and holds no session state.
package wire

import (
	"encoding/json"
	"fmt"
)

// FrameType enumerates the server → client text frame types.
type FrameType string

const (
	TypeStatus                FrameType = "status"
	TypePartialTranscript     FrameType = "partial_transcript"
	TypeFinalTranscript       FrameType = "final_transcript"
	TypeLLMStatus             FrameType = "llm_status"
	TypeLLMResponse           FrameType = "llm_response"
	TypeTTSStart              FrameType = "tts_start"
	TypeTTSEnd                FrameType = "tts_end"
	TypeTTSStop               FrameType = "tts_stop"
	TypeInterruptAcknowledged FrameType = "interrupt_acknowledged"
	TypeStopAcknowledged      FrameType = "stop_acknowledged"
	TypeError                 FrameType = "error"
)

// Session status values carried by status frames.
const (
	StatusListening = "listening"
	StatusStopped   = "stopped"
	StatusIdle      = "idle"
	StatusError     = "error"
)

// LLMStatusProcessing is the only llm_status value: the model is generating.
const LLMStatusProcessing = "processing"

// FormatPCM is the audio format announced by tts_start frames.
const FormatPCM = "pcm"

// CommandName enumerates the client → server commands.
type CommandName string

const (
	CommandStart       CommandName = "start"
	CommandStop        CommandName = "stop"
	CommandReset       CommandName = "reset"
	CommandInterrupt   CommandName = "interrupt"
	CommandClearQueues CommandName = "clear_queues"
)

// Command is a client → server text frame. Only the Command field is
// required; unknown fields are ignored so clients can evolve independently.
type Command struct {
	Command CommandName `json:"command"`
}

// ParseCommand decodes a client text frame. It returns an error for invalid
// JSON, a missing command field, or an unrecognised command name.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("wire: parse command: %w", err)
	}
	switch c.Command {
	case CommandStart, CommandStop, CommandReset, CommandInterrupt, CommandClearQueues:
		return c, nil
	case "":
		return Command{}, fmt.Errorf("wire: missing command field")
	default:
		return Command{}, fmt.Errorf("wire: unknown command %q", c.Command)
	}
}

// Frame is a server → client text frame. Type and SessionID are present on
// every frame; the remaining fields are populated per frame type. Use the
// constructor functions rather than filling Frame in by hand so that the
// per-type field contracts in the protocol table stay in one place.
type Frame struct {
	Type      FrameType `json:"type"`
	SessionID string    `json:"session_id"`

	// TurnID is set on every turn-scoped frame.
	TurnID int `json:"turn_id,omitempty"`

	// Status carries the session status for status frames and "processing"
	// for llm_status frames.
	Status string `json:"status,omitempty"`

	// Message is the human-readable text of status and error frames.
	Message string `json:"message,omitempty"`

	// Content carries transcript text and the accumulated assistant text.
	Content string `json:"content,omitempty"`

	// Format is the audio format announced by tts_start ("pcm").
	Format string `json:"format,omitempty"`

	// IsComplete is present only on llm_response frames. A pointer so that
	// is_complete=false is still serialised.
	IsComplete *bool `json:"is_complete,omitempty"`

	// QueuesCleared is present only on stop_acknowledged frames.
	QueuesCleared *bool `json:"queues_cleared,omitempty"`
}

// Marshal encodes the frame as JSON.
func (f Frame) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s frame: %w", f.Type, err)
	}
	return data, nil
}

// ParseFrame decodes a server text frame. It exists for client code and tests;
// the server itself only encodes.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: parse frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("wire: missing type field")
	}
	return f, nil
}

// ─── Constructors ─────────────────────────────────────────────────────────────

// StatusFrame reports a session phase transition. message may be empty.
func StatusFrame(sessionID, status, message string) Frame {
	return Frame{Type: TypeStatus, SessionID: sessionID, Status: status, Message: message}
}

// PartialTranscriptFrame carries an interim recognition hypothesis.
func PartialTranscriptFrame(sessionID string, turnID int, text string) Frame {
	return Frame{Type: TypePartialTranscript, SessionID: sessionID, TurnID: turnID, Content: text}
}

// FinalTranscriptFrame carries the confirmed utterance that ends listening.
func FinalTranscriptFrame(sessionID string, turnID int, text string) Frame {
	return Frame{Type: TypeFinalTranscript, SessionID: sessionID, TurnID: turnID, Content: text}
}

// LLMStatusFrame announces that generation has started for a turn.
func LLMStatusFrame(sessionID string, turnID int) Frame {
	return Frame{Type: TypeLLMStatus, SessionID: sessionID, TurnID: turnID, Status: LLMStatusProcessing}
}

// LLMResponseFrame mirrors the accumulated assistant text. complete is true
// only on the terminal frame of a turn, which carries the full response.
func LLMResponseFrame(sessionID string, turnID int, content string, complete bool) Frame {
	return Frame{Type: TypeLLMResponse, SessionID: sessionID, TurnID: turnID, Content: content, IsComplete: &complete}
}

// TTSStartFrame opens the PCM stream of a turn.
func TTSStartFrame(sessionID string, turnID int) Frame {
	return Frame{Type: TypeTTSStart, SessionID: sessionID, TurnID: turnID, Format: FormatPCM}
}

// TTSEndFrame closes the PCM stream of a turn after a normal completion.
func TTSEndFrame(sessionID string, turnID int) Frame {
	return Frame{Type: TypeTTSEnd, SessionID: sessionID, TurnID: turnID}
}

// TTSStopFrame closes the PCM stream of a turn after barge-in, interrupt, or
// client stop.
func TTSStopFrame(sessionID string, turnID int) Frame {
	return Frame{Type: TypeTTSStop, SessionID: sessionID, TurnID: turnID}
}

// InterruptAcknowledgedFrame confirms a client interrupt or detected barge-in.
func InterruptAcknowledgedFrame(sessionID string, turnID int) Frame {
	return Frame{Type: TypeInterruptAcknowledged, SessionID: sessionID, TurnID: turnID}
}

// StopAcknowledgedFrame confirms a client stop. queues_cleared is always true:
// the outbound scheduler has dropped everything pending.
func StopAcknowledgedFrame(sessionID string) Frame {
	cleared := true
	return Frame{Type: TypeStopAcknowledged, SessionID: sessionID, QueuesCleared: &cleared}
}

// ErrorFrame surfaces an error to the client. It always precedes any
// state-reset frame emitted for the same cause.
func ErrorFrame(sessionID, message string) Frame {
	return Frame{Type: TypeError, SessionID: sessionID, Message: message}
}
