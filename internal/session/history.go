package session

import "github.com/voxwire/voxwire/pkg/types"

// defaultHistoryMax bounds the conversation history when Config leaves it
// zero. Roughly 20 user/assistant exchanges.
const defaultHistoryMax = 40

// history is the ordered conversation log of one session: alternating user
// and assistant messages, oldest first. When the log exceeds its bound the
// oldest messages are dropped in pairs so the user/assistant alternation
// survives trimming.
//
// history is owned by the state machine driver goroutine; a turn task only
// ever sees the immutable copy returned by snapshot.
type history struct {
	max  int
	msgs []types.Message
}

func newHistory(max int) *history {
	if max <= 0 {
		max = defaultHistoryMax
	}
	return &history{max: max}
}

// append records one message and trims the oldest pair if over bound.
func (h *history) append(role, text string) {
	h.msgs = append(h.msgs, types.Message{Role: role, Content: text})
	for len(h.msgs) > h.max {
		drop := 2
		if drop > len(h.msgs) {
			drop = len(h.msgs)
		}
		h.msgs = h.msgs[drop:]
	}
}

// snapshot returns a copy safe to hand to a turn task.
func (h *history) snapshot() []types.Message {
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// clear empties the log. Used by the client reset command.
func (h *history) clear() {
	h.msgs = nil
}

// len reports the number of stored messages.
func (h *history) len() int { return len(h.msgs) }
