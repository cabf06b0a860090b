package session

import (
	"fmt"
	"testing"

	"github.com/voxwire/voxwire/pkg/types"
)

func TestHistory_AppendAndSnapshot(t *testing.T) {
	t.Parallel()

	h := newHistory(10)
	h.append(types.RoleUser, "hi")
	h.append(types.RoleAssistant, "hello")

	snap := h.snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	if snap[0].Role != types.RoleUser || snap[1].Role != types.RoleAssistant {
		t.Errorf("roles = %q, %q", snap[0].Role, snap[1].Role)
	}

	// The snapshot is a copy: later appends must not show through.
	h.append(types.RoleUser, "again")
	if len(snap) != 2 {
		t.Error("snapshot aliased the live log")
	}
}

func TestHistory_TrimsOldestPairs(t *testing.T) {
	t.Parallel()

	h := newHistory(4)
	for i := 0; i < 4; i++ {
		h.append(types.RoleUser, fmt.Sprintf("q%d", i))
		h.append(types.RoleAssistant, fmt.Sprintf("a%d", i))
	}

	snap := h.snapshot()
	if len(snap) != 4 {
		t.Fatalf("length = %d, want 4", len(snap))
	}
	// Oldest exchanges dropped; alternation preserved.
	if snap[0].Content != "q2" || snap[0].Role != types.RoleUser {
		t.Errorf("oldest kept message = %+v, want user q2", snap[0])
	}
	if snap[3].Content != "a3" || snap[3].Role != types.RoleAssistant {
		t.Errorf("newest message = %+v, want assistant a3", snap[3])
	}
}

func TestHistory_Clear(t *testing.T) {
	t.Parallel()

	h := newHistory(10)
	h.append(types.RoleUser, "hi")
	h.clear()
	if h.len() != 0 {
		t.Errorf("length after clear = %d, want 0", h.len())
	}
}

func TestHistory_DefaultBound(t *testing.T) {
	t.Parallel()

	h := newHistory(0)
	for i := 0; i < defaultHistoryMax+10; i++ {
		h.append(types.RoleUser, "m")
	}
	if h.len() != defaultHistoryMax {
		t.Errorf("length = %d, want %d", h.len(), defaultHistoryMax)
	}
}
