package anyllm

import (
	"testing"

	"github.com/voxwire/voxwire/pkg/provider/llm"
	"github.com/voxwire/voxwire/pkg/types"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("not-a-provider", "some-model"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model   string
		wantCtx int
	}{
		{"gpt-4o", 128_000},
		{"claude-3-5-sonnet-latest", 200_000},
		{"gemini-1.5-pro", 2_097_152},
		{"gemini-1.5-flash", 1_048_576},
		{"o3-mini", 200_000},
		{"unknown-model", 128_000},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantCtx {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantCtx)
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o"}
	req := llm.CompletionRequest{
		SystemPrompt: "be brief",
		Messages:     []types.Message{{Role: "user", Content: "hello"}},
		Temperature:  0.7,
		MaxTokens:    256,
	}
	params := p.buildParams(req)

	if params.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (system + user)", len(params.Messages))
	}
	if params.Messages[0].Content != "be brief" {
		t.Errorf("system content = %q", params.Messages[0].Content)
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("role = %q, want user", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Error("temperature not propagated")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Error("max tokens not propagated")
	}
}
