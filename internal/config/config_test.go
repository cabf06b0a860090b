package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/pkg/provider/asr"
	asrmock "github.com/voxwire/voxwire/pkg/provider/asr/mock"
	"github.com/voxwire/voxwire/pkg/provider/llm"
	llmmock "github.com/voxwire/voxwire/pkg/provider/llm/mock"
	"github.com/voxwire/voxwire/pkg/provider/tts"
	ttsmock "github.com/voxwire/voxwire/pkg/provider/tts/mock"
	"github.com/voxwire/voxwire/pkg/provider/vad"
	"github.com/voxwire/voxwire/pkg/provider/vad/energy"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  static_dir: ./web

providers:
  asr:
    name: deepgram
    api_key: dg-test
    model: nova-2
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  tts:
    name: elevenlabs
    api_key: el-test
  vad:
    name: energy

session:
  system_prompt: "You are a concise voice assistant."
  language: en-US
  history_max_messages: 40
  llm_first_token_timeout: 5s
  tts_first_chunk_timeout: 3s
  turn_timeout: 60s
  idle_timeout: 10m
  pcm_enqueue_wait: 150ms
  segment_queue_depth: 4
  barge_in_threshold: 0.05
  barge_in_dwell: 3

voice:
  provider: elevenlabs
  voice_id: rachel
  sample_rate: 24000
  speed_factor: 1.1
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.ASR.Name != "deepgram" {
		t.Errorf("providers.asr.name: got %q, want %q", cfg.Providers.ASR.Name, "deepgram")
	}
	if cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("providers.llm.model: got %q", cfg.Providers.LLM.Model)
	}
	if cfg.Session.LLMFirstTokenTimeout != 5*time.Second {
		t.Errorf("session.llm_first_token_timeout: got %v, want 5s", cfg.Session.LLMFirstTokenTimeout)
	}
	if cfg.Session.IdleTimeout != 10*time.Minute {
		t.Errorf("session.idle_timeout: got %v, want 10m", cfg.Session.IdleTimeout)
	}
	if cfg.Session.PCMEnqueueWait != 150*time.Millisecond {
		t.Errorf("session.pcm_enqueue_wait: got %v, want 150ms", cfg.Session.PCMEnqueueWait)
	}
	if cfg.Session.SegmentQueueDepth != 4 {
		t.Errorf("session.segment_queue_depth: got %d, want 4", cfg.Session.SegmentQueueDepth)
	}
	if cfg.Session.BargeInThreshold != 0.05 {
		t.Errorf("session.barge_in_threshold: got %v", cfg.Session.BargeInThreshold)
	}
	if cfg.Voice.VoiceID != "rachel" {
		t.Errorf("voice.voice_id: got %q", cfg.Voice.VoiceID)
	}
	if cfg.Voice.SampleRate != 24000 {
		t.Errorf("voice.sample_rate: got %d", cfg.Voice.SampleRate)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  max_sessions: 10
providers:
  asr: {name: deepgram}
  llm: {name: openai}
  tts: {name: elevenlabs}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

// minimalYAML satisfies the required-provider checks; test cases splice their
// broken sections on top.
const minimalYAML = `
providers:
  asr: {name: deepgram}
  llm: {name: openai}
  tts: {name: elevenlabs}
`

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := minimalYAML + `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingRequiredProviders(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
providers:
  vad: {name: energy}
`))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	for _, want := range []string{"providers.asr", "providers.llm", "providers.tts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_BargeInThresholdRange(t *testing.T) {
	yaml := minimalYAML + `
session:
  barge_in_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range barge_in_threshold, got nil")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	yaml := minimalYAML + `
session:
  turn_timeout: -5s
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative timeout, got nil")
	}
}

func TestValidate_UnsupportedSampleRate(t *testing.T) {
	yaml := minimalYAML + `
session:
  inbound_sample_rate: 44100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unsupported sample rate, got nil")
	}
}

func TestValidate_InvalidSpeedFactor(t *testing.T) {
	yaml := minimalYAML + `
voice:
  speed_factor: 5.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid speed_factor, got nil")
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	yaml := minimalYAML + `
server:
  tls:
    cert_file: /etc/voxwire/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for partial TLS config, got nil")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownProviders(t *testing.T) {
	reg := config.NewRegistry()

	if _, err := reg.CreateASR(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateASR: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateVAD(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredFactories(t *testing.T) {
	reg := config.NewRegistry()

	wantASR := &asrmock.Provider{}
	reg.RegisterASR("stub", func(config.ProviderEntry) (asr.Provider, error) { return wantASR, nil })
	gotASR, err := reg.CreateASR(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateASR: %v", err)
	}
	if gotASR != wantASR {
		t.Error("CreateASR returned a different instance")
	}

	wantLLM := &llmmock.Provider{}
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	gotLLM, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotLLM != wantLLM {
		t.Error("CreateLLM returned a different instance")
	}

	wantTTS := &ttsmock.Provider{}
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	gotTTS, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if gotTTS != wantTTS {
		t.Error("CreateTTS returned a different instance")
	}

	wantVAD := energy.New()
	reg.RegisterVAD("stub", func(config.ProviderEntry) (vad.Engine, error) { return wantVAD, nil })
	gotVAD, err := reg.CreateVAD(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("CreateVAD: %v", err)
	}
	if gotVAD != wantVAD {
		t.Error("CreateVAD returned a different instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	reg := config.NewRegistry()
	first := &llmmock.Provider{}
	second := &llmmock.Provider{}
	reg.RegisterLLM("dup", func(config.ProviderEntry) (llm.Provider, error) { return first, nil })
	reg.RegisterLLM("dup", func(config.ProviderEntry) (llm.Provider, error) { return second, nil })

	got, err := reg.CreateLLM(config.ProviderEntry{Name: "dup"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got != second {
		t.Error("later registration did not overwrite the earlier one")
	}
}
