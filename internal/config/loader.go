package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"deepgram", "mock"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "mock"},
	"tts": {"elevenlabs", "mock"},
	"vad": {"energy", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
//
// $VAR and ${VAR} references are expanded from the environment before
// decoding, so secrets such as api_key can stay out of the file. Unset
// variables expand to the empty string.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
		}
	}

	// Required pipeline stages.
	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, fmt.Errorf("providers.asr.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, fmt.Errorf("providers.tts.name is required"))
	}

	// Provider name validation warns for unknown names.
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Session tunables.
	s := cfg.Session
	if s.LLMFirstTokenTimeout < 0 || s.TTSFirstChunkTimeout < 0 || s.TurnTimeout < 0 || s.IdleTimeout < 0 || s.PCMEnqueueWait < 0 {
		errs = append(errs, fmt.Errorf("session timeouts must not be negative"))
	}
	if s.BargeInThreshold < 0 || s.BargeInThreshold > 1 {
		errs = append(errs, fmt.Errorf("session.barge_in_threshold %.3f is out of range [0, 1]", s.BargeInThreshold))
	}
	if s.BargeInDwell < 0 {
		errs = append(errs, fmt.Errorf("session.barge_in_dwell must not be negative"))
	}
	if s.InboundSampleRate != 0 {
		switch s.InboundSampleRate {
		case 8000, 16000, 24000, 48000:
		default:
			errs = append(errs, fmt.Errorf("session.inbound_sample_rate %d is unsupported; valid values: 8000, 16000, 24000, 48000", s.InboundSampleRate))
		}
	}
	if s.OutboundQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("session.outbound_queue_depth must not be negative"))
	}
	if s.SegmentQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("session.segment_queue_depth must not be negative"))
	}

	// Voice.
	if cfg.Voice.SpeedFactor != 0 {
		if cfg.Voice.SpeedFactor < 0.5 || cfg.Voice.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Voice.SpeedFactor))
		}
	}
	if cfg.Voice.Provider != "" && cfg.Providers.TTS.Name != "" && cfg.Voice.Provider != cfg.Providers.TTS.Name {
		slog.Warn("voice provider does not match configured TTS provider",
			"voice_provider", cfg.Voice.Provider,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}
	if cfg.Providers.VAD.Name == "" {
		slog.Info("no VAD provider configured; barge-in will use client energy flags only")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
