// Package wake turns a stream of speech-to-text transcripts into wake,
// utterance and timeout events.
//
// The [Recognizer] has two modes. In [ModeWake] it scores every listener
// transcript against the wake phrase with [Score]; a detection switches it to
// [ModeCommand] and arms the command timeout. In [ModeCommand] the next final
// transcript becomes an utterance. The orchestrator drives the mode from the
// outside with [Recognizer.Listen] and [Recognizer.Reset].
//
// Scoring is pure and exported so the thresholds can be tuned offline against
// recorded transcripts.
package wake

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/nara/pkg/types"
)

// Mode is the recognizer's listening mode.
type Mode int

const (
	// ModeWake waits for the wake phrase.
	ModeWake Mode = iota

	// ModeCommand treats the next final transcript as a question.
	ModeCommand
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeWake:
		return "wake"
	case ModeCommand:
		return "command"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// EventType classifies an [Event].
type EventType int

const (
	// EventWake fires when the wake phrase is detected.
	EventWake EventType = iota + 1

	// EventUtterance carries a complete listener question.
	EventUtterance

	// EventTimeout fires when command mode expires without a question.
	EventTimeout
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventWake:
		return "wake"
	case EventUtterance:
		return "utterance"
	case EventTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted on [Recognizer.Events].
type Event struct {
	Type EventType

	// Text is the question for EventUtterance, the matched transcript for
	// EventWake and empty for EventTimeout.
	Text string

	// Score is the wake score for EventWake.
	Score float64

	At time.Time
}

// Config holds the recognizer's tunables. All fields are hot-reloadable via
// [Recognizer.Reconfigure].
type Config struct {
	// Phrase is the wake phrase. Default "hey nara".
	Phrase string

	// Sensitivity is the minimum [Score] that counts as a detection. Default 0.7.
	Sensitivity float64

	// Debounce is the minimum time between two detections. Default 2s.
	Debounce time.Duration

	// CommandTimeout is how long command mode waits for a question. Default 8s.
	CommandTimeout time.Duration

	// Substitutions is the misrecognition table used by [SubstitutionMatch].
	// Nil uses [DefaultSubstitutions].
	Substitutions SubstitutionTable
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{
		Phrase:         "hey nara",
		Sensitivity:    0.7,
		Debounce:       2 * time.Second,
		CommandTimeout: 8 * time.Second,
		Substitutions:  DefaultSubstitutions(),
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if Normalize(c.Phrase) == "" {
		errs = append(errs, errors.New("wake: phrase must not be empty"))
	}
	if c.Sensitivity <= 0 || c.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wake: sensitivity %v out of range (0, 1]", c.Sensitivity))
	}
	if c.Debounce < 0 {
		errs = append(errs, errors.New("wake: debounce must not be negative"))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, errors.New("wake: command timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Option configures a [Recognizer].
type Option func(*Recognizer)

// WithClock overrides the clock used for debouncing and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) { r.now = now }
}

// WithEventBuffer sets the capacity of the events channel. Default 16.
func WithEventBuffer(n int) Option {
	return func(r *Recognizer) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// Recognizer is safe for concurrent use. Transcripts are typically delivered
// from the STT pump goroutine while the orchestrator calls Listen and Reset.
type Recognizer struct {
	mu         sync.Mutex
	cfg        Config
	mode       Mode
	lastDetect time.Time
	timer      *time.Timer
	timerGen   uint64
	closed     bool

	// wakeUnacked is set when a wake event is emitted and cleared by the
	// next Listen or Reset.
	wakeUnacked bool

	now     func() time.Time
	bufSize int
	events  chan Event
}

// New creates a Recognizer. Zero fields in cfg take their defaults.
func New(cfg Config, opts ...Option) (*Recognizer, error) {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Recognizer{
		cfg:     cfg,
		now:     time.Now,
		bufSize: 16,
	}
	for _, o := range opts {
		o(r)
	}
	r.events = make(chan Event, r.bufSize)
	return r, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Phrase == "" {
		cfg.Phrase = def.Phrase
	}
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = def.Sensitivity
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.Substitutions == nil {
		cfg.Substitutions = def.Substitutions
	}
	return cfg
}

// Events returns the channel on which wake, utterance and timeout events are
// delivered. It is closed by [Recognizer.Close].
func (r *Recognizer) Events() <-chan Event { return r.events }

// Mode returns the current mode.
func (r *Recognizer) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Config returns the active configuration.
func (r *Recognizer) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Reconfigure swaps the tunables. The current mode and any armed timer are
// kept; the new command timeout applies from the next arm.
func (r *Recognizer) Reconfigure(cfg Config) error {
	cfg = withDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	slog.Info("wake: recognizer reconfigured",
		"sensitivity", cfg.Sensitivity,
		"debounce", cfg.Debounce,
		"substitutions", len(cfg.Substitutions),
	)
	return nil
}

// Listen forces command mode and arms the command timeout, as if the wake
// phrase had just been heard.
//
// The first Listen after a wake event acknowledges that wake. If the
// recognizer already left command mode for it, because the question arrived
// in the same transcript or the command timeout fired, that Listen is a
// no-op: the utterance or timeout event is already queued behind the wake.
func (r *Recognizer) Listen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	acked := r.wakeUnacked
	r.wakeUnacked = false
	if acked && r.mode == ModeWake {
		return
	}
	r.mode = ModeCommand
	r.armLocked()
}

// Reset returns to wake mode and disarms the command timeout.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ModeWake
	r.wakeUnacked = false
	r.disarmLocked()
}

// Close disarms the timer and closes the events channel. Further transcripts
// are ignored.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.disarmLocked()
	close(r.events)
}

// HandleTranscript feeds one transcript into the recognizer. System-role
// transcripts are dropped.
func (r *Recognizer) HandleTranscript(t types.Transcript) {
	if !t.FromListener() || strings.TrimSpace(t.Text) == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	switch r.mode {
	case ModeWake:
		r.handleWakeLocked(t)
	case ModeCommand:
		if !t.IsFinal {
			return
		}
		question := t.Text
		if rest, ok := stripWake(r.cfg, t.Text); ok {
			question = rest
		}
		if question == "" {
			return
		}
		r.emitUtteranceLocked(question)
	}
}

func (r *Recognizer) handleWakeLocked(t types.Transcript) {
	score := Score(r.cfg.Phrase, t.Text, t.Confidence, r.cfg.Substitutions)
	if score < r.cfg.Sensitivity {
		return
	}
	now := r.now()
	if !r.lastDetect.IsZero() && now.Sub(r.lastDetect) < r.cfg.Debounce {
		slog.Debug("wake: detection debounced", "score", score)
		return
	}
	r.lastDetect = now
	r.mode = ModeCommand
	r.wakeUnacked = true
	r.armLocked()
	r.emitLocked(Event{Type: EventWake, Text: t.Text, Score: score, At: now})

	if !t.IsFinal {
		return
	}
	if rest, _ := stripWake(r.cfg, t.Text); rest != "" {
		r.emitUtteranceLocked(rest)
	}
}

// emitUtteranceLocked emits the question and hands control back to wake mode
// so that a later wake phrase is a barge-in.
func (r *Recognizer) emitUtteranceLocked(text string) {
	r.disarmLocked()
	r.mode = ModeWake
	r.emitLocked(Event{Type: EventUtterance, Text: text, At: r.now()})
}

func (r *Recognizer) emitLocked(e Event) {
	select {
	case r.events <- e:
	default:
		slog.Warn("wake: event buffer full, dropping event", "type", e.Type.String())
	}
}

func (r *Recognizer) armLocked() {
	r.disarmLocked()
	r.timerGen++
	gen := r.timerGen
	r.timer = time.AfterFunc(r.cfg.CommandTimeout, func() { r.expire(gen) })
}

func (r *Recognizer) disarmLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}

func (r *Recognizer) expire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.timerGen || r.mode != ModeCommand {
		return
	}
	r.timer = nil
	r.mode = ModeWake
	r.emitLocked(Event{Type: EventTimeout, At: r.now()})
}

// stripWake locates the wake phrase at the start of text and returns whatever
// follows it, with the original casing kept. ok is false when text does not
// open with the wake phrase.
func stripWake(cfg Config, text string) (rest string, ok bool) {
	fields := strings.Fields(text)
	n := len(strings.Fields(Normalize(cfg.Phrase)))
	if n == 0 || len(fields) < n {
		return "", false
	}

	// Allow one leading filler word ("okay hey nara ...").
	for start := 0; start <= 1 && start+n <= len(fields); start++ {
		head := strings.Join(fields[start:start+n], " ")
		if Score(cfg.Phrase, head, 0, cfg.Substitutions) < cfg.Sensitivity {
			continue
		}
		rest = strings.Join(fields[start+n:], " ")
		return strings.TrimLeft(rest, ",.!?;: "), true
	}
	return "", false
}
