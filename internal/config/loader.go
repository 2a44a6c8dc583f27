package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/nara/internal/answer"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":      {"deepgram"},
	"tts":      {"elevenlabs"},
	"vad":      {"energy"},
	"playback": {"spotify", "none"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr   = ":8080"
	DefaultSampleRate   = 16000
	DefaultFrameMs      = 20
	DefaultPollInterval = 2 * time.Second
	DefaultCacheTTL     = 24 * time.Hour
	DefaultWSPath       = "/v1/audio"
	DefaultWakePhrase   = "hey nara"
	DefaultSensitivity  = 0.7
)

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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields that have a documented default.
// Detector and pipeline tunables left at zero keep their package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Voice.ListenMode == "" {
		cfg.Voice.ListenMode = "wake"
	}
	if cfg.Voice.SampleRate == 0 {
		cfg.Voice.SampleRate = DefaultSampleRate
	}
	if cfg.Voice.FrameMs == 0 {
		cfg.Voice.FrameMs = DefaultFrameMs
	}
	if cfg.Voice.Wake.Phrase == "" {
		cfg.Voice.Wake.Phrase = DefaultWakePhrase
	}
	if cfg.Voice.Wake.Sensitivity == 0 {
		cfg.Voice.Wake.Sensitivity = DefaultSensitivity
	}
	if cfg.Answering.ModeHint == "" {
		cfg.Answering.ModeHint = string(answer.ModeAuto)
	}
	if cfg.Content.Driver == "" {
		cfg.Content.Driver = DriverMemory
	}
	if cfg.Content.PollInterval == 0 {
		cfg.Content.PollInterval = DefaultPollInterval
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Audio.WSPath == "" {
		cfg.Audio.WSPath = DefaultWSPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("playback", cfg.Providers.Playback.Name)
	for _, group := range []struct {
		kind    string
		entries []ProviderEntry
	}{
		{"llm", cfg.Providers.LLMFallbacks},
		{"stt", cfg.Providers.STTFallbacks},
		{"tts", cfg.Providers.TTSFallbacks},
	} {
		kind := group.kind
		for i, fb := range group.entries {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required to answer questions"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; spoken questions cannot be recognised")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; answers will not be spoken")
	}

	// Voice
	if m := cfg.Voice.ListenMode; m != "wake" && m != "continuous" {
		errs = append(errs, fmt.Errorf("voice.listen_mode %q is invalid; valid values: wake, continuous", m))
	}
	if cfg.Voice.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate %d must be positive", cfg.Voice.SampleRate))
	}
	if cfg.Voice.FrameMs < 0 || cfg.Voice.FrameMs > 100 {
		errs = append(errs, fmt.Errorf("voice.frame_ms %d is out of range [1, 100]", cfg.Voice.FrameMs))
	}
	if s := cfg.Voice.Wake.Sensitivity; s < 0 || s > 1 {
		errs = append(errs, fmt.Errorf("voice.wake.sensitivity %.2f is out of range [0, 1]", s))
	}
	if cfg.Voice.Wake.Debounce < 0 || cfg.Voice.Wake.CommandTimeout < 0 {
		errs = append(errs, errors.New("voice.wake durations must not be negative"))
	}
	if sf := cfg.Voice.Voice.SpeedFactor; sf != 0 && (sf < 0.5 || sf > 2.0) {
		errs = append(errs, fmt.Errorf("voice.tts_voice.speed_factor %.2f is out of range [0.5, 2.0]", sf))
	}
	if v := cfg.Voice.VAD; v.WindowFrames > 0 && v.SpeechFrames > v.WindowFrames {
		errs = append(errs, fmt.Errorf("voice.vad.speech_frames %d exceeds window_frames %d", v.SpeechFrames, v.WindowFrames))
	}

	// Answering
	if _, err := answer.ParseMode(cfg.Answering.ModeHint); err != nil {
		errs = append(errs, fmt.Errorf("answering.mode_hint: %w", err))
	}
	a := cfg.Answering
	if a.ContextBudget < 0 || a.ReserveTokens < 0 || a.CompressTargetTokens < 0 || a.FocusFallbackUnits < 0 {
		errs = append(errs, errors.New("answering token settings must not be negative"))
	}
	if a.ContextBudget > 0 && a.ReserveTokens >= a.ContextBudget {
		errs = append(errs, fmt.Errorf("answering.reserve_tokens %d leaves no room in context_budget %d", a.ReserveTokens, a.ContextBudget))
	}
	if a.AnswerTimeout < 0 || a.SpeechTimeout < 0 {
		errs = append(errs, errors.New("answering timeouts must not be negative"))
	}

	// Content
	if !cfg.Content.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("content.driver %q is invalid; valid values: postgres, sqlite, memory", cfg.Content.Driver))
	}
	if (cfg.Content.Driver == DriverPostgres || cfg.Content.Driver == DriverSQLite) && cfg.Content.DSN == "" {
		errs = append(errs, fmt.Errorf("content.dsn is required for driver %q", cfg.Content.Driver))
	}
	if cfg.Content.AudiobookID == "" {
		errs = append(errs, errors.New("content.audiobook_id is required"))
	}
	if cfg.Content.UserID == "" {
		slog.Warn("content.user_id is empty; listener progress starts from the first observed position")
	}
	if cfg.Content.PollInterval < 0 {
		errs = append(errs, errors.New("content.poll_interval must not be negative"))
	}

	// Cache
	if cfg.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}

	// Audio
	if p := cfg.Audio.WSPath; p != "" && p[0] != '/' {
		errs = append(errs, fmt.Errorf("audio.ws_path %q must start with /", p))
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
