// Package answer implements the spoiler-gated answering pipeline.
//
// A question runs through a fixed sequence of stages:
//
//  1. [ResolveAllowedChapter] bounds what may be read.
//  2. [Loader] fetches that chapter's transcript and earlier summaries.
//  3. [DecideMode] picks full, compressed or focused inclusion from a token
//     estimate and the model's context budget.
//  4. [Compressor] or [SelectFocused] shrink the content when needed.
//  5. [Pack] assembles the prompt.
//  6. [Answerer] makes the one model call and [Parse]s the reply.
//  7. [Finalize] turns a citation into a playback hint.
//
// Stages run sequentially and never swallow errors. The loader reports
// [ErrContentUnavailable] when the allowed chapter has no transcript; callers
// decide what to say instead.
package answer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/pkg/cache"
	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/provider/llm"
)

// defaultContextWindow is assumed when neither the config nor the model
// reports one.
const defaultContextWindow = 128_000

// Config holds the pipeline tunables.
type Config struct {
	// ContextBudget overrides the model's context window when > 0.
	ContextBudget int

	// ReserveTokens is subtracted from the context window before planning.
	// Default [DefaultReserveTokens].
	ReserveTokens int

	// CompressTarget is the compressed summary size. Default
	// [DefaultCompressTarget].
	CompressTarget int

	// FocusFallback is K for [SelectFocused]. Default [DefaultFocusFallback].
	FocusFallback int

	// ModeHint forces a mode unless it is [ModeAuto].
	ModeHint Mode

	// SkipSummaries disables prior chapter summaries in the prompt.
	SkipSummaries bool
}

// Request is one listener question.
type Request struct {
	Playback content.PlaybackContext
	Question string
}

// Result is the immutable outcome of one question.
type Result struct {
	Markdown       string
	Citations      []Citation
	PlaybackHint   *PlaybackHint
	Latency        time.Duration
	Mode           Mode
	Source         Source
	AllowedChapter int
}

// Pipeline wires the stages together. It is safe for concurrent use.
type Pipeline struct {
	loader     *Loader
	compressor *Compressor
	answerer   *Answerer
	model      llm.Provider
	metrics    *observe.Metrics
	now        func() time.Time

	mu  sync.RWMutex
	cfg Config
}

// Option configures a [Pipeline].
type Option func(*pipelineOptions)

type pipelineOptions struct {
	cache        cache.Cache
	cacheTTL     time.Duration
	metrics      *observe.Metrics
	now          func() time.Time
	answererOpts []AnswererOption
}

// WithSummaryCache memoises compressed chapters in c.
func WithSummaryCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *pipelineOptions) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithMetrics records stage latencies and mode decisions on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *pipelineOptions) { o.metrics = m }
}

// WithClock overrides the clock used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(o *pipelineOptions) { o.now = now }
}

// WithAnswererOptions forwards options to the [Answerer].
func WithAnswererOptions(opts ...AnswererOption) Option {
	return func(o *pipelineOptions) { o.answererOpts = append(o.answererOpts, opts...) }
}

// New creates a Pipeline reading from store and answering with model.
func New(store content.Store, model llm.Provider, cfg Config, opts ...Option) *Pipeline {
	var o pipelineOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.now == nil {
		o.now = time.Now
	}

	var loaderOpts []LoaderOption
	if cfg.SkipSummaries {
		loaderOpts = append(loaderOpts, WithoutSummaries())
	}
	var compOpts []CompressorOption
	if o.cache != nil {
		compOpts = append(compOpts, WithCache(o.cache, o.cacheTTL))
	}

	return &Pipeline{
		loader:     NewLoader(store, loaderOpts...),
		compressor: NewCompressor(model, compOpts...),
		answerer:   NewAnswerer(model, o.answererOpts...),
		model:      model,
		metrics:    o.metrics,
		now:        o.now,
		cfg:        withDefaults(cfg),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.ReserveTokens <= 0 {
		cfg.ReserveTokens = DefaultReserveTokens
	}
	if cfg.CompressTarget <= 0 {
		cfg.CompressTarget = DefaultCompressTarget
	}
	if cfg.FocusFallback <= 0 {
		cfg.FocusFallback = DefaultFocusFallback
	}
	if cfg.ModeHint == "" {
		cfg.ModeHint = ModeAuto
	}
	return cfg
}

// SetModeHint changes the mode override for subsequent questions.
func (p *Pipeline) SetModeHint(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m == "" {
		m = ModeAuto
	}
	p.cfg.ModeHint = m
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Answer runs every stage for req. Errors carry the failing stage and wrap
// the underlying cause; [ErrContentUnavailable] is matchable with errors.Is.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	cfg := p.Config()

	ctx, span := observe.StartSpan(ctx, "answer.pipeline")
	defer span.End()

	allowed := ResolveAllowedChapter(req.Playback)
	span.SetAttributes(
		attribute.String("audiobook_id", req.Playback.AudiobookID),
		attribute.Int("allowed_chapter", allowed),
	)

	var loaded *Loaded
	if err := p.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		loaded, err = p.loader.Load(ctx, req.Playback.AudiobookID, allowed)
		return err
	}); err != nil {
		return nil, failSpan(span, err)
	}

	fullText := FormatUnits(loaded.Units)
	budget := BudgetFor(p.contextWindow(cfg), cfg.ReserveTokens)
	mode := DecideMode(Plan{
		UnitTokens: EstimateTokens(fullText),
		Budget:     budget,
		Hint:       cfg.ModeHint,
	})
	p.metrics.RecordAnswerMode(ctx, string(mode))
	span.SetAttributes(attribute.String("mode", string(mode)))

	var body string
	switch mode {
	case ModeCompressed:
		if err := p.stage(ctx, "compress", func(ctx context.Context) error {
			var err error
			body, err = p.compressor.CompressBook(ctx, loaded.Book.ID, loaded.Units, cfg.CompressTarget)
			return err
		}); err != nil {
			return nil, failSpan(span, err)
		}
	case ModeFocused:
		if err := p.stage(ctx, "focus", func(context.Context) error {
			focused := SelectFocused(loaded.Units, req.Question, cfg.FocusFallback, budget)
			if len(focused) == 0 {
				return fmt.Errorf("%w: no unit fits a %d token budget", ErrContentUnavailable, budget)
			}
			body = FormatUnits(focused)
			return nil
		}); err != nil {
			return nil, failSpan(span, err)
		}
	default:
		body = fullText
	}

	prompt := Pack(PackInput{
		Book:      loaded.Book,
		Chapter:   loaded.Chapter,
		Allowed:   allowed,
		Mode:      mode,
		Content:   body,
		Summaries: loaded.Summaries,
		Question:  req.Question,
	})

	var parsed Parsed
	if err := p.stage(ctx, "answer", func(ctx context.Context) error {
		var err error
		parsed, err = p.answerer.Answer(ctx, prompt)
		return err
	}); err != nil {
		return nil, failSpan(span, err)
	}

	res := &Result{
		Markdown:       parsed.Markdown,
		Citations:      parsed.Citations,
		PlaybackHint:   Finalize(parsed, loaded, allowed),
		Mode:           mode,
		Source:         parsed.Source,
		AllowedChapter: allowed,
		Latency:        p.now().Sub(start),
	}
	observe.Logger(ctx).Debug("answer: pipeline finished",
		"mode", mode,
		"source", res.Source,
		"citations", len(res.Citations),
		"latency", res.Latency,
	)
	return res, nil
}

func (p *Pipeline) contextWindow(cfg Config) int {
	if cfg.ContextBudget > 0 {
		return cfg.ContextBudget
	}
	if w := p.model.Capabilities().ContextWindow; w > 0 {
		return w
	}
	return defaultContextWindow
}

// stage runs fn inside a child span and records its latency.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "answer."+name)
	defer span.End()
	start := p.now()
	err := fn(ctx)
	p.metrics.RecordStage(ctx, name, p.now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
	}
	return err
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "answer failed")
	return err
}
