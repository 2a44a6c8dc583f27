// Package app wires all Nara subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture, progress and interaction loops, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithContentStore,
// WithAudio, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/internal/config"
	"github.com/MrWong99/nara/internal/events"
	"github.com/MrWong99/nara/internal/health"
	"github.com/MrWong99/nara/internal/interaction"
	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/internal/progress"
	"github.com/MrWong99/nara/internal/wake"
	"github.com/MrWong99/nara/pkg/audio"
	"github.com/MrWong99/nara/pkg/audio/wsbridge"
	"github.com/MrWong99/nara/pkg/cache"
	"github.com/MrWong99/nara/pkg/cache/redis"
	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/content/memstore"
	"github.com/MrWong99/nara/pkg/content/postgres"
	"github.com/MrWong99/nara/pkg/content/sqlite"
	"github.com/MrWong99/nara/pkg/playback"
	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/provider/vad"
	"github.com/MrWong99/nara/pkg/provider/vad/energy"
	"github.com/MrWong99/nara/pkg/types"
)

// publishTimeout bounds a single interaction event publish.
const publishTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM      llm.Provider
	STT      stt.Provider
	TTS      tts.Provider
	VAD      vad.Engine
	Playback playback.Adapter
}

// App owns all subsystem lifetimes and drives the Nara voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	store      content.Store
	cache      cache.Cache
	publisher  events.Publisher
	source     audio.Source
	sink       audio.Sink
	bridge     *wsbridge.Bridge
	recognizer *wake.Recognizer
	tracker    *progress.Tracker
	pipeline   *answer.Pipeline
	orch       *interaction.Orchestrator
	health     *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithContentStore injects a content store instead of opening one from config.
func WithContentStore(s content.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCache injects the summary cache instead of creating one from config.
func WithCache(c cache.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithPublisher injects the interaction event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithAudio injects the capture source and answer sink, replacing the
// websocket bridge.
func WithAudio(src audio.Source, sink audio.Sink) Option {
	return func(a *App) {
		a.source = src
		a.sink = sink
	}
}

// WithMetrics overrides the metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an llm provider is required")
	}
	if providers.TTS == nil {
		return nil, errors.New("app: a tts provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.providers.Playback == nil {
		slog.Warn("app: no playback adapter configured, pause and resume are disabled")
		a.providers.Playback = playback.Nop{}
	}
	if a.providers.VAD == nil {
		a.providers.VAD = energy.New()
	}

	// ── 1. Content store ─────────────────────────────────────────────────
	if err := a.initContent(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init content: %w", err)
	}

	// ── 2. Summary cache ─────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Event publisher ───────────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 4. Audio ─────────────────────────────────────────────────────────
	a.initAudio(ctx)

	// ── 5. Voice path ────────────────────────────────────────────────────
	if err := a.initVoice(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init voice: %w", err)
	}

	// ── 6. Health ────────────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initContent opens the configured content store unless one was injected.
func (a *App) initContent(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	cc := a.cfg.Content
	switch cc.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cc.DSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cc.DSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	case config.DriverMemory, "":
		slog.Warn("app: using the in-memory content store, it starts empty")
		a.store = memstore.New()
	default:
		return fmt.Errorf("unknown content driver %q", cc.Driver)
	}
	slog.Info("content store ready", "driver", cc.Driver, "audiobook_id", cc.AudiobookID)
	return nil
}

// initCache connects to Redis when configured and falls back to an in-process
// cache otherwise.
func (a *App) initCache(ctx context.Context) error {
	if a.cache != nil {
		return nil
	}
	if a.cfg.Cache.RedisURL == "" {
		a.cache = cache.NewMemory()
		return nil
	}
	var opts []redis.Option
	if a.cfg.Cache.Prefix != "" {
		opts = append(opts, redis.WithPrefix(a.cfg.Cache.Prefix))
	}
	c, err := redis.New(ctx, a.cfg.Cache.RedisURL, opts...)
	if err != nil {
		return err
	}
	a.cache = c
	a.closers = append(a.closers, c.Close)
	return nil
}

// initEvents connects to NATS when configured.
func (a *App) initEvents() error {
	if a.publisher != nil {
		return nil
	}
	if a.cfg.Events.NATSURL == "" {
		a.publisher = events.Nop{}
		return nil
	}
	n, err := events.Connect(a.cfg.Events.NATSURL, a.cfg.Events.SubjectPrefix)
	if err != nil {
		return err
	}
	a.publisher = n
	a.closers = append(a.closers, n.Close)
	return nil
}

// initAudio creates the websocket bridge unless audio was injected.
func (a *App) initAudio(ctx context.Context) {
	if a.source != nil && a.sink != nil {
		return
	}
	format := audio.Format{SampleRate: a.cfg.Voice.SampleRate, Channels: 1}
	b := wsbridge.New(format,
		wsbridge.WithOriginPatterns(a.cfg.Audio.OriginPatterns...),
		wsbridge.WithMuteHandler(func(muted bool) {
			if a.orch != nil {
				a.orch.SetMuted(muted)
			}
		}),
		wsbridge.WithConnectionHandler(func(delta int64) {
			a.metrics.BridgeClients.Add(context.WithoutCancel(ctx), delta)
		}),
	)
	a.bridge = b
	a.source = b
	a.sink = b
	a.closers = append(a.closers, b.Close)
}

// initVoice builds the recognizer, progress tracker, answering pipeline and
// interaction orchestrator.
func (a *App) initVoice() error {
	rec, err := wake.New(wakeConfig(a.cfg.Voice.Wake))
	if err != nil {
		return err
	}
	a.recognizer = rec

	var trackerOpts []progress.Option
	if w, ok := a.store.(content.Writer); ok {
		trackerOpts = append(trackerOpts, progress.WithProgressWriter(w))
	}
	a.tracker, err = progress.New(a.store, a.providers.Playback, progress.Config{
		AudiobookID:  a.cfg.Content.AudiobookID,
		UserID:       a.cfg.Content.UserID,
		PollInterval: a.cfg.Content.PollInterval,
	}, trackerOpts...)
	if err != nil {
		return err
	}

	ansCfg, err := answerConfig(a.cfg.Answering)
	if err != nil {
		return err
	}
	a.pipeline = answer.New(a.store, instrumentLLM(a.providers.LLM, a.cfg.Providers.LLM.Name, a.metrics), ansCfg,
		answer.WithSummaryCache(a.cache, a.cfg.Cache.TTL),
		answer.WithMetrics(a.metrics),
	)

	a.orch, err = interaction.New(interactionConfig(a.cfg), interaction.Deps{
		Answerer:   a.pipeline,
		Playback:   a.providers.Playback,
		TTS:        instrumentTTS(a.providers.TTS, a.cfg.Providers.TTS.Name, a.metrics),
		Sink:       a.sink,
		Recognizer: a.recognizer,
		Context:    a.tracker,
	}, interaction.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.orch.SetMuted(a.cfg.Voice.Muted)
	return nil
}

// initHealth registers the readiness checks.
func (a *App) initHealth() {
	checkers := []health.Checker{
		health.PingChecker("content", a.store),
		health.PlaybackChecker(a.providers.Playback),
	}
	if p, ok := a.cache.(health.Pinger); ok {
		checkers = append(checkers, health.Checker{Name: "cache", Check: p.Ping, Advisory: true})
	}
	if n, ok := a.publisher.(*events.NATS); ok {
		checkers = append(checkers, health.Checker{Name: "events", Advisory: true, Check: func(context.Context) error {
			if !n.Healthy() {
				return errors.New("nats connection is not established")
			}
			return nil
		}})
	}
	if h, ok := a.providers.LLM.(interface{ Healthy(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "llm", Check: h.Healthy, Advisory: true})
	}
	a.health = health.New(checkers...)
}

// ─── Config mapping ──────────────────────────────────────────────────────────

func wakeConfig(c config.WakeConfig) wake.Config {
	cfg := wake.DefaultConfig()
	if c.Phrase != "" {
		cfg.Phrase = c.Phrase
	}
	if c.Sensitivity > 0 {
		cfg.Sensitivity = c.Sensitivity
	}
	if c.Debounce > 0 {
		cfg.Debounce = c.Debounce
	}
	if c.CommandTimeout > 0 {
		cfg.CommandTimeout = c.CommandTimeout
	}
	if len(c.Substitutions) > 0 {
		cfg.Substitutions = wake.SubstitutionTable(c.Substitutions)
	}
	return cfg
}

func vadConfig(v config.VoiceConfig) vad.Config {
	cfg := vad.DefaultConfig()
	cfg.SampleRate = v.SampleRate
	cfg.FrameSizeMs = v.FrameMs
	if v.VAD.StaticThreshold > 0 {
		cfg.StaticThreshold = v.VAD.StaticThreshold
	}
	if v.VAD.NoiseMultiplier > 0 {
		cfg.NoiseMultiplier = v.VAD.NoiseMultiplier
	}
	if v.VAD.CalibrationFrames > 0 {
		cfg.CalibrationFrames = v.VAD.CalibrationFrames
	}
	if v.VAD.WindowFrames > 0 {
		cfg.WindowFrames = v.VAD.WindowFrames
	}
	if v.VAD.SpeechFrames > 0 {
		cfg.SpeechFrames = v.VAD.SpeechFrames
	}
	if v.VAD.Debounce > 0 {
		cfg.Debounce = v.VAD.Debounce
	}
	return cfg
}

func answerConfig(c config.AnsweringConfig) (answer.Config, error) {
	mode, err := answer.ParseMode(c.ModeHint)
	if err != nil {
		return answer.Config{}, err
	}
	return answer.Config{
		ContextBudget:  c.ContextBudget,
		ReserveTokens:  c.ReserveTokens,
		CompressTarget: c.CompressTargetTokens,
		FocusFallback:  c.FocusFallbackUnits,
		ModeHint:       mode,
		SkipSummaries:  c.SkipSummaries,
	}, nil
}

func interactionConfig(cfg *config.Config) interaction.Config {
	return interaction.Config{
		ListenMode:      interaction.ListenMode(cfg.Voice.ListenMode),
		AnswerTimeout:   cfg.Answering.AnswerTimeout,
		SpeechTimeout:   cfg.Answering.SpeechTimeout,
		GenericResponse: cfg.Answering.GenericResponse,
		Voice: types.VoiceProfile{
			ID:          cfg.Voice.Voice.VoiceID,
			Provider:    cfg.Providers.TTS.Name,
			SpeedFactor: cfg.Voice.Voice.SpeedFactor,
		},
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the interaction, progress and capture loops and blocks until ctx
// is cancelled or one of them fails. A cancelled ctx yields
// context.Canceled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.orch.Run(gctx) })
	g.Go(func() error { return a.tracker.Run(gctx) })
	g.Go(func() error {
		a.publishOutcomes(gctx)
		return nil
	})
	g.Go(func() error { return a.forwardWakeEvents(gctx) })

	if a.providers.STT != nil {
		g.Go(func() error { return a.capture(gctx) })
	} else {
		slog.Warn("app: no stt provider configured, voice capture is disabled")
	}

	slog.Info("app running",
		"audiobook_id", a.cfg.Content.AudiobookID,
		"listen_mode", a.cfg.Voice.ListenMode,
		"muted", a.orch.Muted(),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// forwardWakeEvents maps recognizer events onto orchestrator signals.
func (a *App) forwardWakeEvents(ctx context.Context) error {
	defer a.recognizer.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.recognizer.Events():
			if !ok {
				return nil
			}
			sig, ok := signalFor(ev)
			if !ok {
				continue
			}
			if ev.Type == wake.EventWake {
				a.metrics.WakeDetections.Add(ctx, 1)
			}
			if err := a.orch.Send(ctx, sig); err != nil {
				slog.Debug("app: dropping wake event", "type", ev.Type.String(), "err", err)
			}
		}
	}
}

func signalFor(ev wake.Event) (interaction.Signal, bool) {
	switch ev.Type {
	case wake.EventWake:
		return interaction.Signal{Kind: interaction.SignalWake, Text: ev.Text}, true
	case wake.EventUtterance:
		return interaction.Signal{Kind: interaction.SignalUtterance, Text: ev.Text}, true
	case wake.EventTimeout:
		return interaction.Signal{Kind: interaction.SignalTimeout}, true
	default:
		return interaction.Signal{}, false
	}
}

// publishOutcomes publishes every interaction report until the orchestrator
// closes its outcome channel.
func (a *App) publishOutcomes(ctx context.Context) {
	for r := range a.orch.Outcomes() {
		ev := events.FromReport(a.cfg.Content.AudiobookID, r)
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := a.publisher.Publish(pctx, ev); err != nil {
			slog.Warn("app: failed to publish interaction event",
				"interaction_id", r.InteractionID, "outcome", string(r.Outcome), "err", err)
		}
		cancel()
	}
}

// ─── Actions ─────────────────────────────────────────────────────────────────

// ErrNoPlaybackHint is returned by [App.JumpToCitation] when the last answer
// did not resolve to an audio position.
var ErrNoPlaybackHint = errors.New("app: last answer has no playback position")

// JumpToCitation seeks playback to the position cited by the last completed
// answer and returns that position in seconds.
func (a *App) JumpToCitation(ctx context.Context) (float64, error) {
	res := a.orch.LastResult()
	if res == nil || res.PlaybackHint == nil {
		return 0, ErrNoPlaybackHint
	}
	pos := res.PlaybackHint.StartSeconds
	if err := a.providers.Playback.Seek(ctx, pos); err != nil {
		return 0, fmt.Errorf("app: seek to citation: %w", err)
	}
	slog.Info("jumped to citation", "chapter", res.PlaybackHint.ChapterIndex, "seconds", pos)
	return pos, nil
}

// Ask submits a typed question as if it had been spoken.
func (a *App) Ask(ctx context.Context, question string) error {
	if question == "" {
		return errors.New("app: question must not be empty")
	}
	return a.orch.Send(ctx, interaction.Signal{Kind: interaction.SignalUtterance, Text: question})
}

// ApplyConfig applies the hot-reloadable fields of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) error {
	var errs []error
	if d.WakeChanged {
		if err := a.recognizer.Reconfigure(wakeConfig(d.NewWake)); err != nil {
			errs = append(errs, err)
		}
	}
	if d.MutedChanged {
		a.orch.SetMuted(d.NewMuted)
		slog.Info("mute changed", "muted", d.NewMuted)
	}
	if d.ModeHintChanged {
		mode, err := answer.ParseMode(d.NewModeHint)
		if err != nil {
			errs = append(errs, err)
		} else {
			a.pipeline.SetModeHint(mode)
			slog.Info("answer mode hint changed", "mode", string(mode))
		}
	}
	return errors.Join(errs...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every subsystem in creation order. It is safe to call more
// than once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("app: shutdown: %w", ctx.Err())
		}
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
