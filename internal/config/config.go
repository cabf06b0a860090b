// Package config provides the configuration schema, loader, provider registry,
// and hot-reload watcher for the Voxwire server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Voxwire server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Voxwire.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Voice     VoiceConfig     `yaml:"voice"`
}

// ServerConfig holds network and logging settings for the Voxwire server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// StaticDir, when non-empty, is a directory of static client assets served
	// at the web root (the reference browser client lives here).
	StaticDir string `yaml:"static_dir"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry]. ASR, LLM, and TTS are required; VAD is optional and falls back
// to the client's coarse energy flags when unset.
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SessionConfig holds the per-session dialogue tunables. Zero values fall back
// to the session package defaults.
type SessionConfig struct {
	// SystemPrompt is prepended to every model request.
	SystemPrompt string `yaml:"system_prompt"`

	// Language is the BCP-47 recognition hint (e.g., "en-US"). Empty lets the
	// ASR provider auto-detect.
	Language string `yaml:"language"`

	// HistoryMaxMessages bounds the conversation history kept for prompts.
	HistoryMaxMessages int `yaml:"history_max_messages"`

	// InboundSampleRate is the PCM rate clients are contracted to send.
	InboundSampleRate int `yaml:"inbound_sample_rate"`

	// LLMFirstTokenTimeout bounds the wait for the model's first token.
	LLMFirstTokenTimeout time.Duration `yaml:"llm_first_token_timeout"`

	// TTSFirstChunkTimeout bounds the wait for a segment's first audio chunk.
	TTSFirstChunkTimeout time.Duration `yaml:"tts_first_chunk_timeout"`

	// TurnTimeout bounds a whole turn, generation and synthesis included.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// IdleTimeout tears down sessions with no inbound frames for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// OutboundQueueDepth bounds the per-session outbound scheduler queue.
	OutboundQueueDepth int `yaml:"outbound_queue_depth"`

	// PCMEnqueueWait bounds how long synthesis may wait on a full outbound
	// queue before the client is declared too slow and torn down.
	PCMEnqueueWait time.Duration `yaml:"pcm_enqueue_wait"`

	// SegmentQueueDepth bounds the generator-to-speaker segment channel.
	SegmentQueueDepth int `yaml:"segment_queue_depth"`

	// BargeInThreshold is the normalized energy above which a frame counts as
	// voiced during assistant playback. Range (0, 1].
	BargeInThreshold float64 `yaml:"barge_in_threshold"`

	// BargeInDwell is the number of consecutive voiced frames required to
	// trigger barge-in.
	BargeInDwell int `yaml:"barge_in_dwell"`
}

// UnmarshalYAML decodes the session block. The timeout fields accept Go
// duration strings ("5s", "10m"); yaml.v3 has no native time.Duration support.
func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		SystemPrompt         string  `yaml:"system_prompt"`
		Language             string  `yaml:"language"`
		HistoryMaxMessages   int     `yaml:"history_max_messages"`
		InboundSampleRate    int     `yaml:"inbound_sample_rate"`
		LLMFirstTokenTimeout string  `yaml:"llm_first_token_timeout"`
		TTSFirstChunkTimeout string  `yaml:"tts_first_chunk_timeout"`
		TurnTimeout          string  `yaml:"turn_timeout"`
		IdleTimeout          string  `yaml:"idle_timeout"`
		OutboundQueueDepth   int     `yaml:"outbound_queue_depth"`
		PCMEnqueueWait       string  `yaml:"pcm_enqueue_wait"`
		SegmentQueueDepth    int     `yaml:"segment_queue_depth"`
		BargeInThreshold     float64 `yaml:"barge_in_threshold"`
		BargeInDwell         int     `yaml:"barge_in_dwell"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.SystemPrompt = raw.SystemPrompt
	s.Language = raw.Language
	s.HistoryMaxMessages = raw.HistoryMaxMessages
	s.InboundSampleRate = raw.InboundSampleRate
	s.OutboundQueueDepth = raw.OutboundQueueDepth
	s.SegmentQueueDepth = raw.SegmentQueueDepth
	s.BargeInThreshold = raw.BargeInThreshold
	s.BargeInDwell = raw.BargeInDwell

	for _, d := range []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"llm_first_token_timeout", raw.LLMFirstTokenTimeout, &s.LLMFirstTokenTimeout},
		{"tts_first_chunk_timeout", raw.TTSFirstChunkTimeout, &s.TTSFirstChunkTimeout},
		{"turn_timeout", raw.TurnTimeout, &s.TurnTimeout},
		{"idle_timeout", raw.IdleTimeout, &s.IdleTimeout},
		{"pcm_enqueue_wait", raw.PCMEnqueueWait, &s.PCMEnqueueWait},
	} {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("session.%s: %w", d.field, err)
		}
		*d.dst = parsed
	}
	return nil
}

// VoiceConfig specifies the synthesis voice for all sessions.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "elevenlabs"). Defaults to the
	// configured providers.tts name.
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SampleRate is the PCM output rate in Hz. Zero means the provider default.
	SampleRate int `yaml:"sample_rate"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}
