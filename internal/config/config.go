// Package config provides the configuration schema, loader, and provider registry
// for the Nara audiobook companion.
package config

import "time"

// LogLevel controls log verbosity for the Nara server.
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

// ContentDriver selects the content store backend.
type ContentDriver string

const (
	DriverPostgres ContentDriver = "postgres"
	DriverSQLite   ContentDriver = "sqlite"
	DriverMemory   ContentDriver = "memory"
)

// IsValid reports whether d is a recognised driver.
func (d ContentDriver) IsValid() bool {
	switch d {
	case DriverPostgres, DriverSQLite, DriverMemory:
		return true
	}
	return false
}

// Config is the root configuration structure for Nara.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	Answering AnsweringConfig `yaml:"answering"`
	Content   ContentConfig   `yaml:"content"`
	Cache     CacheConfig     `yaml:"cache"`
	Events    EventsConfig    `yaml:"events"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig holds network and logging settings for the Nara server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	// It serves the audio bridge, health, metrics and the jump endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// stage. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM      ProviderEntry `yaml:"llm"`
	STT      ProviderEntry `yaml:"stt"`
	TTS      ProviderEntry `yaml:"tts"`
	VAD      ProviderEntry `yaml:"vad"`
	Playback ProviderEntry `yaml:"playback"`

	// LLMFallbacks are tried in order when the primary LLM fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// STTFallbacks and TTSFallbacks cover stream setup only.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
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

// VoiceConfig tunes the capture side: VAD, wake recognition and the voice
// used for answers.
type VoiceConfig struct {
	// ListenMode is "wake" (default) or "continuous".
	ListenMode string `yaml:"listen_mode"`

	// SampleRate is the capture rate fed to VAD and STT. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the VAD frame duration. Default 20.
	FrameMs int `yaml:"frame_ms"`

	// Muted suppresses spoken answers at startup. Hot-reloadable.
	Muted bool `yaml:"muted"`

	VAD   VADConfig   `yaml:"vad"`
	Wake  WakeConfig  `yaml:"wake"`
	Voice TTSVoiceRef `yaml:"tts_voice"`
}

// VADConfig holds the energy detector thresholds. Zero values take the
// detector defaults.
type VADConfig struct {
	StaticThreshold   float64       `yaml:"static_threshold"`
	NoiseMultiplier   float64       `yaml:"noise_multiplier"`
	CalibrationFrames int           `yaml:"calibration_frames"`
	WindowFrames      int           `yaml:"window_frames"`
	SpeechFrames      int           `yaml:"speech_frames"`
	Debounce          time.Duration `yaml:"debounce"`
}

// WakeConfig configures the wake phrase recognizer. Sensitivity, Debounce
// and Substitutions are hot-reloadable.
type WakeConfig struct {
	Phrase         string            `yaml:"phrase"`
	Sensitivity    float64           `yaml:"sensitivity"`
	Debounce       time.Duration     `yaml:"debounce"`
	CommandTimeout time.Duration     `yaml:"command_timeout"`
	Substitutions  map[string]string `yaml:"substitutions"`
}

// TTSVoiceRef selects the TTS voice for answers.
type TTSVoiceRef struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// AnsweringConfig tunes the answering pipeline and its time bounds.
type AnsweringConfig struct {
	// ContextBudget overrides the model's context window, in tokens. 0 uses
	// the model's advertised window.
	ContextBudget int `yaml:"context_budget"`

	// ReserveTokens are held back for the system prompt and the answer.
	ReserveTokens int `yaml:"reserve_tokens"`

	// CompressTargetTokens is the size a compressed chapter aims for.
	CompressTargetTokens int `yaml:"compress_target_tokens"`

	// FocusFallbackUnits is how many leading units focused mode keeps when
	// no keyword matches.
	FocusFallbackUnits int `yaml:"focus_fallback_units"`

	// ModeHint forces a content mode: auto, full, compressed or focused.
	// Hot-reloadable.
	ModeHint string `yaml:"mode_hint"`

	// SkipSummaries leaves prior-chapter summaries out of the prompt.
	SkipSummaries bool `yaml:"skip_summaries"`

	AnswerTimeout time.Duration `yaml:"answer_timeout"`
	SpeechTimeout time.Duration `yaml:"speech_timeout"`

	// GenericResponse is spoken when no transcript exists for the chapter.
	GenericResponse string `yaml:"generic_response"`
}

// ContentConfig selects the content store and the book being listened to.
type ContentConfig struct {
	Driver ContentDriver `yaml:"driver"`

	// DSN is the Postgres connection string or the SQLite file path.
	DSN string `yaml:"dsn"`

	AudiobookID string `yaml:"audiobook_id"`
	UserID      string `yaml:"user_id"`

	// PollInterval is how often the player position is sampled. Default 2s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CacheConfig configures the compressed-chapter cache. With an empty
// RedisURL an in-process cache is used.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// EventsConfig configures interaction event publishing. With an empty
// NATSURL events are discarded.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AudioConfig configures the websocket audio bridge.
type AudioConfig struct {
	// WSPath is the HTTP path of the bridge. Default "/v1/audio".
	WSPath string `yaml:"ws_path"`

	// OriginPatterns lists cross-origin hosts allowed to connect.
	OriginPatterns []string `yaml:"origin_patterns"`
}
