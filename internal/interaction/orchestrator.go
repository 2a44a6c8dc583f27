// Package interaction implements the voice interaction state machine.
//
// The [Orchestrator] owns the exchange between listener and audiobook:
//
//	Idle ──wake──▶ Listening ──utterance──▶ Processing ──answer──▶ Speaking ──done──▶ Idle
//	                  ▲                          │                      │
//	                  └─────────── barge-in ─────┴──────────────────────┘
//
// It is driven by typed [Signal] values on a single input channel and runs on
// one goroutine, so the transition table is the Run loop's switch. Each
// question runs in a worker goroutine with its own cancellable context; the
// worker only reports back by message and never touches orchestrator state.
//
// Playback is paused before anything else when listening starts and is
// resumed on every exit from Processing or Speaking except a barge-in, which
// hands the paused player to the next interaction.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/internal/observe"
	"github.com/MrWong99/nara/pkg/audio"
	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/playback"
	"github.com/MrWong99/nara/pkg/provider/tts"
	"github.com/MrWong99/nara/pkg/types"
)

const (
	defaultAnswerTimeout   = 20 * time.Second
	defaultSpeechTimeout   = 90 * time.Second
	defaultGenericResponse = "I don't have the transcript for this part of the book yet, so I can't answer without risking spoilers. Let's keep listening."
	playbackCallTimeout    = 5 * time.Second
	signalBuffer           = 32
	outcomeBuffer          = 64
)

var errStopped = errors.New("interaction: orchestrator stopped")

// Answerer produces an answer for a question. [answer.Pipeline] satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request) (*answer.Result, error)
}

// Recognizer is the part of the wake recognizer the orchestrator drives.
// [wake.Recognizer] satisfies it.
type Recognizer interface {
	// Listen forces command mode.
	Listen()

	// Reset returns to wake mode.
	Reset()
}

// ContextSource returns the listener's current playback context. The
// progress tracker satisfies it.
type ContextSource interface {
	Snapshot() content.PlaybackContext
}

// ContextFunc adapts a function to [ContextSource].
type ContextFunc func() content.PlaybackContext

// Snapshot implements [ContextSource].
func (f ContextFunc) Snapshot() content.PlaybackContext { return f() }

// Config holds the orchestrator tunables.
type Config struct {
	// ListenMode decides whether bare speech opens the microphone. Default
	// [ListenWake].
	ListenMode ListenMode

	// AnswerTimeout bounds the answering pipeline. Default 20s.
	AnswerTimeout time.Duration

	// SpeechTimeout bounds synthesis and playback of one answer. Default 90s.
	SpeechTimeout time.Duration

	// GenericResponse is spoken when no transcript is available.
	GenericResponse string

	// Voice is passed to the TTS provider.
	Voice types.VoiceProfile
}

// Deps are the services the orchestrator drives. All fields are required.
type Deps struct {
	Answerer   Answerer
	Playback   playback.Adapter
	TTS        tts.Provider
	Sink       audio.Sink
	Recognizer Recognizer
	Context    ContextSource
}

func (d Deps) validate() error {
	var errs []error
	if d.Answerer == nil {
		errs = append(errs, errors.New("answerer"))
	}
	if d.Playback == nil {
		errs = append(errs, errors.New("playback"))
	}
	if d.TTS == nil {
		errs = append(errs, errors.New("tts"))
	}
	if d.Sink == nil {
		errs = append(errs, errors.New("sink"))
	}
	if d.Recognizer == nil {
		errs = append(errs, errors.New("recognizer"))
	}
	if d.Context == nil {
		errs = append(errs, errors.New("context"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("interaction: missing dependencies: %w", err)
	}
	return nil
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics records interaction outcomes on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the clock used for interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the single owner of the interaction state. Send, SetMuted,
// State, LastResult and Outcomes are safe for concurrent use; Run must be
// called exactly once.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	metrics *observe.Metrics
	now     func() time.Time

	signals  chan Signal
	results  chan workerMsg
	outcomes chan Report
	done     chan struct{}

	muted atomic.Bool
	state atomic.Int32

	lastMu     sync.Mutex
	lastResult *answer.Result

	// Owned by the Run goroutine.
	active *Interaction
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.ListenMode == "" {
		cfg.ListenMode = ListenWake
	}
	if cfg.ListenMode != ListenWake && cfg.ListenMode != ListenContinuous {
		return nil, fmt.Errorf("interaction: unknown listen mode %q", cfg.ListenMode)
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = defaultAnswerTimeout
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = defaultSpeechTimeout
	}
	if cfg.GenericResponse == "" {
		cfg.GenericResponse = defaultGenericResponse
	}

	o := &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		signals:  make(chan Signal, signalBuffer),
		results:  make(chan workerMsg, signalBuffer),
		outcomes: make(chan Report, outcomeBuffer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Send delivers a signal to the state machine. It blocks only if the input
// buffer is full and returns ctx.Err() if ctx ends first.
func (o *Orchestrator) Send(ctx context.Context, s Signal) error {
	select {
	case <-o.done:
		return errStopped
	default:
	}
	select {
	case o.signals <- s:
		return nil
	case <-o.done:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcomes returns the channel of interaction reports. It is closed when Run
// returns. Reports are dropped with a warning if nobody drains it.
func (o *Orchestrator) Outcomes() <-chan Report { return o.outcomes }

// SetMuted suppresses spoken answers. Playback is still paused and resumed.
func (o *Orchestrator) SetMuted(muted bool) {
	o.muted.Store(muted)
	slog.Info("interaction: mute changed", "muted", muted)
}

// Muted reports whether spoken answers are suppressed.
func (o *Orchestrator) Muted() bool { return o.muted.Load() }

// State returns the current state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// LastResult returns the most recent completed answer, or nil.
func (o *Orchestrator) LastResult() *answer.Result {
	o.lastMu.Lock()
	defer o.lastMu.Unlock()
	return o.lastResult
}

// Run drives the state machine until ctx is cancelled. On return the active
// interaction has been cancelled, playback resumed and Outcomes closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.outcomes)
	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			o.shutdown(ctx)
			return nil
		case sig := <-o.signals:
			o.handleSignal(ctx, sig)
		case msg := <-o.results:
			o.handleWorker(ctx, msg)
		}
	}
}

// ── Signals ──────────────────────────────────────────────────────────────────

func (o *Orchestrator) handleSignal(ctx context.Context, sig Signal) {
	state := o.State()
	slog.Debug("interaction: signal", "signal", sig.Kind.String(), "state", state.String())

	switch state {
	case StateIdle:
		switch sig.Kind {
		case SignalWake:
			o.beginListening(ctx)
		case SignalSpeech:
			if o.cfg.ListenMode == ListenContinuous {
				o.beginListening(ctx)
			}
		case SignalUtterance:
			o.beginListening(ctx)
			o.startInteraction(ctx, sig.Text)
		}

	case StateListening:
		switch sig.Kind {
		case SignalUtterance:
			o.startInteraction(ctx, sig.Text)
		case SignalTimeout:
			slog.Info("interaction: no question heard, resuming")
			o.resume(ctx)
			o.deps.Recognizer.Reset()
			o.setState(StateIdle)
		}

	case StateProcessing, StateSpeaking:
		switch sig.Kind {
		case SignalWake, SignalSpeech:
			o.bargeIn()
		default:
			slog.Debug("interaction: ignoring signal while busy", "signal", sig.Kind.String(), "state", state.String())
		}
	}
}

// beginListening pauses playback before anything else, then opens the
// recognizer. A failed pause is logged; the question still goes ahead.
func (o *Orchestrator) beginListening(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, playbackCallTimeout)
	if err := o.deps.Playback.Pause(pctx); err != nil {
		slog.Warn("interaction: pause failed", "err", err)
	}
	cancel()
	o.deps.Recognizer.Listen()
	o.setState(StateListening)
}

func (o *Orchestrator) startInteraction(ctx context.Context, question string) {
	ictx, cancel := context.WithCancelCause(ctx)
	inter := &Interaction{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Question:  question,
		cancel:    cancel,
	}
	o.active = inter
	o.metrics.ActiveInteractions.Add(ctx, 1)
	o.setState(StateProcessing)
	slog.Info("interaction: started", "interaction_id", inter.ID, "question", question)

	go o.work(ictx, inter)
}

// bargeIn aborts the active interaction and listens again. Playback stays
// paused for the next interaction.
func (o *Orchestrator) bargeIn() {
	inter := o.active
	if inter == nil {
		return
	}
	inter.cancel(ErrBargeIn)
	slog.Info("interaction: barge-in", "interaction_id", inter.ID)
	o.deps.Recognizer.Listen()
	o.setState(StateListening)
	o.finish(context.Background(), inter, workerResult{err: ErrBargeIn})
}

// ── Worker messages ──────────────────────────────────────────────────────────

type workerMsg struct {
	id string

	// proceed is set when the answer is ready; the orchestrator replies true
	// if the worker may start speaking.
	proceed chan bool

	// done is set when the worker has finished.
	done *workerResult
}

type workerResult struct {
	result   *answer.Result
	fallback bool
	err      error
}

func (o *Orchestrator) handleWorker(ctx context.Context, msg workerMsg) {
	current := o.active != nil && o.active.ID == msg.id

	if msg.proceed != nil {
		if current && o.State() == StateProcessing {
			o.setState(StateSpeaking)
			msg.proceed <- true
			return
		}
		msg.proceed <- false
		return
	}

	if !current {
		slog.Debug("interaction: ignoring stale worker", "interaction_id", msg.id)
		return
	}
	inter := o.active
	o.resume(ctx)
	o.deps.Recognizer.Reset()
	o.setState(StateIdle)
	o.finish(ctx, inter, *msg.done)
}

// finish clears the active interaction and emits its report.
func (o *Orchestrator) finish(ctx context.Context, inter *Interaction, res workerResult) {
	if o.active == inter {
		o.active = nil
	}
	inter.cancel(nil)
	o.metrics.ActiveInteractions.Add(ctx, -1)

	outcome := Classify(res.err)
	elapsed := o.now().Sub(inter.StartedAt)
	o.metrics.RecordInteraction(ctx, string(outcome), elapsed)

	if outcome == OutcomeCompleted && res.result != nil && !res.fallback {
		o.lastMu.Lock()
		o.lastResult = res.result
		o.lastMu.Unlock()
	}

	attrs := []any{"interaction_id", inter.ID, "outcome", string(outcome), "duration", elapsed}
	switch outcome {
	case OutcomeCompleted, OutcomeAborted:
		slog.Info("interaction: finished", attrs...)
	default:
		slog.Warn("interaction: finished", append(attrs, "err", res.err)...)
	}

	report := Report{
		InteractionID: inter.ID,
		Question:      inter.Question,
		Outcome:       outcome,
		Result:        res.result,
		Fallback:      res.fallback,
		StartedAt:     inter.StartedAt,
		Duration:      elapsed,
	}
	if outcome != OutcomeCompleted {
		report.Err = res.err
	}
	select {
	case o.outcomes <- report:
	default:
		slog.Warn("interaction: outcome buffer full, dropping report", "interaction_id", inter.ID)
	}
}

func (o *Orchestrator) resume(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), playbackCallTimeout)
	defer cancel()
	if err := o.deps.Playback.Resume(rctx); err != nil {
		slog.Error("interaction: resume failed, playback left paused", "err", err)
	}
}

func (o *Orchestrator) shutdown(ctx context.Context) {
	state := o.State()
	if inter := o.active; inter != nil {
		inter.cancel(context.Canceled)
		o.finish(context.WithoutCancel(ctx), inter, workerResult{err: fmt.Errorf("interaction: shutdown: %w", context.Canceled)})
	}
	if state != StateIdle {
		o.resume(ctx)
	}
	o.setState(StateIdle)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}
