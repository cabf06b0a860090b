package openai

import (
	"testing"

	"github.com/voxwire/voxwire/pkg/types"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model       string
		wantCtx     int
		wantMaxOut  int
	}{
		{"gpt-4o", 128_000, 16_384},
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1", 200_000, 100_000},
		{"something-unknown", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantCtx {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantCtx)
			}
			if caps.MaxOutputTokens != tt.wantMaxOut {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantMaxOut)
			}
			if !caps.SupportsStreaming {
				t.Error("SupportsStreaming should be true")
			}
		})
	}
}

func TestCountTokensApproximation(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o")
	if err != nil {
		t.Fatal(err)
	}
	msgs := []types.Message{
		{Role: "user", Content: "hello world, how are you"}, // 24 chars -> 6 tokens + 4 overhead
	}
	n, err := p.CountTokens(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("CountTokens = %d, want 10", n)
	}
}

func TestConvertMessageUnknownRole(t *testing.T) {
	t.Parallel()

	if _, err := convertMessage(types.Message{Role: "robot"}); err == nil {
		t.Error("expected error for unknown role")
	}
}
