// Command nara is the main entry point for the Nara audiobook companion server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/oauth2"

	"github.com/MrWong99/nara/internal/app"
	"github.com/MrWong99/nara/internal/config"
	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/internal/resilience"
	"github.com/MrWong99/nara/pkg/playback"
	"github.com/MrWong99/nara/pkg/playback/spotify"
	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/provider/llm/anyllm"
	"github.com/MrWong99/nara/pkg/provider/llm/openai"
	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/provider/stt/deepgram"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/nara/pkg/provider/vad"
	"github.com/MrWong99/nara/pkg/provider/vad/energy"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nara: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nara: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("nara starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(d config.ConfigDiff, _ *config.Config) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if err := application.ApplyConfig(d); err != nil {
			slog.Warn("failed to apply config change", "err", err)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() { _ = watcher.Run(watchCtx) }()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(runCtx) }()

	exitCode := 0
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
			exitCode = 1
		}
	case err, ok := <-serveErr:
		if ok && err != nil {
			slog.Error("http server error", "err", err)
			exitCode = 1
		}
		cancelRun()
		<-runErr
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exitCode
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai goes through the native client for JSON mode. Everything else
	// shares the any-llm pattern: optional APIKey + optional BaseURL.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Playback ──────────────────────────────────────────────────────────────
	reg.RegisterPlayback("spotify", func(entry config.ProviderEntry) (playback.Adapter, error) {
		token, err := spotifyToken(entry)
		if err != nil {
			return nil, err
		}
		var opts []spotify.Option
		if id := optString(entry.Options, "device_id"); id != "" {
			opts = append(opts, spotify.WithDeviceID(id))
		}
		if entry.BaseURL != "" {
			opts = append(opts, spotify.WithBaseURL(entry.BaseURL))
		}
		offsets, err := optSeconds(entry.Options, "item_offsets")
		if err != nil {
			return nil, fmt.Errorf("spotify: %w", err)
		}
		if len(offsets) > 0 {
			opts = append(opts, spotify.WithItemOffsets(offsets))
		}
		return spotify.New(token, opts...)
	})
	reg.RegisterPlayback("none", func(config.ProviderEntry) (playback.Adapter, error) {
		return playback.Nop{}, nil
	})

	for _, kind := range []string{"llm", "stt", "tts", "vad", "playback"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
// LLM, STT and TTS providers with configured fallbacks are wrapped in a
// failover group with one circuit breaker per backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	if name := pc.LLM.Name; name != "" {
		p, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)

		if len(pc.LLMFallbacks) > 0 {
			group := resilience.NewLLMFallback(p, name, breakerConfig("llm"))
			if err := addFallbacks(group.FallbackGroup, "llm", pc.LLMFallbacks, reg.CreateLLM); err != nil {
				return nil, err
			}
			ps.LLM = group
		}
	}

	if name := pc.STT.Name; name != "" {
		p, err := reg.CreateSTT(pc.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)

		if len(pc.STTFallbacks) > 0 {
			group := resilience.NewSTTFallback(p, name, breakerConfig("stt"))
			if err := addFallbacks(group.FallbackGroup, "stt", pc.STTFallbacks, reg.CreateSTT); err != nil {
				return nil, err
			}
			ps.STT = group
		}
	}

	if name := pc.TTS.Name; name != "" {
		p, err := reg.CreateTTS(pc.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)

		if len(pc.TTSFallbacks) > 0 {
			group := resilience.NewTTSFallback(p, name, breakerConfig("tts"))
			if err := addFallbacks(group.FallbackGroup, "tts", pc.TTSFallbacks, reg.CreateTTS); err != nil {
				return nil, err
			}
			ps.TTS = group
		}
	}

	if name := pc.VAD.Name; name != "" {
		p, err := reg.CreateVAD(pc.VAD)
		if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		ps.VAD = p
		slog.Info("provider created", "kind", "vad", "name", name)
	}

	if name := pc.Playback.Name; name != "" {
		p, err := reg.CreatePlayback(pc.Playback)
		if err != nil {
			return nil, fmt.Errorf("create playback adapter %q: %w", name, err)
		}
		ps.Playback = p
		slog.Info("provider created", "kind", "playback", "name", name)
	}

	return ps, nil
}

func breakerConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker changed state", "kind", kind, "provider", name, "from", from.String(), "to", to.String())
			},
		},
	}
}

func addFallbacks[T any](group *resilience.FallbackGroup[T], kind string, entries []config.ProviderEntry, create func(config.ProviderEntry) (T, error)) error {
	for _, e := range entries {
		p, err := create(e)
		if err != nil {
			return fmt.Errorf("create %s fallback %q: %w", kind, e.Name, err)
		}
		group.AddFallback(e.Name, p)
		slog.Info("provider created", "kind", kind+"-fallback", "name", e.Name)
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Nara  startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	printRow("Fallbacks", fmt.Sprintf("llm=%d stt=%d tts=%d",
		len(cfg.Providers.LLMFallbacks), len(cfg.Providers.STTFallbacks), len(cfg.Providers.TTSFallbacks)))
	printRow("STT", providerLabel(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	printRow("TTS", providerLabel(cfg.Providers.TTS.Name, cfg.Providers.TTS.Model))
	printRow("VAD", providerLabel(cfg.Providers.VAD.Name, ""))
	printRow("Playback", providerLabel(cfg.Providers.Playback.Name, ""))
	printRow("Content", string(cfg.Content.Driver))
	printRow("Audiobook", cfg.Content.AudiobookID)
	printRow("Listen mode", cfg.Voice.ListenMode)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	switch {
	case name == "":
		return "(not configured)"
	case model != "":
		return name + " / " + model
	default:
		return name
	}
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// spotifyToken prefers the refresh-token grant from options and falls back to
// api_key as a static access token.
func spotifyToken(entry config.ProviderEntry) (oauth2.TokenSource, error) {
	creds := spotify.Credentials{
		ClientID:     optString(entry.Options, "client_id"),
		ClientSecret: optString(entry.Options, "client_secret"),
		RefreshToken: optString(entry.Options, "refresh_token"),
		TokenURL:     optString(entry.Options, "token_url"),
	}
	switch {
	case creds.ClientID != "" && creds.RefreshToken != "":
		return creds.TokenSource(context.Background()), nil
	case entry.APIKey != "":
		slog.Warn("spotify: static access token expires after an hour; set options.client_id and options.refresh_token")
		return spotify.StaticToken(entry.APIKey), nil
	default:
		return nil, errors.New("spotify: set options.client_id and options.refresh_token, or api_key")
	}
}

// optSeconds reads a map of names to second offsets.
func optSeconds(opts map[string]any, key string) (map[string]float64, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options.%s: want a map of item id to seconds, got %T", key, raw)
	}
	out := make(map[string]float64, len(m))
	for id, v := range m {
		switch n := v.(type) {
		case int:
			out[id] = float64(n)
		case float64:
			out[id] = n
		default:
			return nil, fmt.Errorf("options.%s.%s: want seconds, got %T", key, id, v)
		}
	}
	return out, nil
}

// optInt reads an integer option. YAML decodes small numbers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	n, ok := opts[key].(int)
	return n, ok
}
