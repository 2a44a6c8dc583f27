package wake_test

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/nara/internal/wake"
	"github.com/MrWong99/nara/pkg/types"
)

// fakeClock is a manually advanced clock for debounce tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRecognizer(t *testing.T, cfg wake.Config, opts ...wake.Option) *wake.Recognizer {
	t.Helper()
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = time.Minute
	}
	r, err := wake.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func nextEvent(t *testing.T, r *wake.Recognizer) wake.Event {
	t.Helper()
	select {
	case e := <-r.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return wake.Event{}
	}
}

func expectNoEvent(t *testing.T, r *wake.Recognizer, wait time.Duration) {
	t.Helper()
	select {
	case e := <-r.Events():
		t.Fatalf("unexpected event %s %q", e.Type, e.Text)
	case <-time.After(wait):
	}
}

func partial(text string) types.Transcript { return types.Transcript{Text: text} }
func final(text string) types.Transcript { return types.Transcript{Text: text, IsFinal: true} }

func TestRecognizer_WakeThenQuestion(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	r.HandleTranscript(partial("hey nara"))
	e := nextEvent(t, r)
	if e.Type != wake.EventWake || e.Score != 1 {
		t.Fatalf("got %s score %v, want wake with score 1", e.Type, e.Score)
	}
	if r.Mode() != wake.ModeCommand {
		t.Fatalf("mode = %s, want command", r.Mode())
	}

	// The final for the same breath repeats the wake phrase.
	r.HandleTranscript(final("Hey Nara, who is Rand?"))
	e = nextEvent(t, r)
	if e.Type != wake.EventUtterance || e.Text != "who is Rand?" {
		t.Fatalf("got %s %q, want utterance %q", e.Type, e.Text, "who is Rand?")
	}
	if r.Mode() != wake.ModeWake {
		t.Errorf("mode after utterance = %s, want wake", r.Mode())
	}
}

func TestRecognizer_FinalWithQuestionEmitsBoth(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	r.HandleTranscript(final("Hey Nara who is Peter Thiel talking about here"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("first event = %s, want wake", e.Type)
	}
	e := nextEvent(t, r)
	if e.Type != wake.EventUtterance || e.Text != "who is Peter Thiel talking about here" {
		t.Fatalf("got %s %q", e.Type, e.Text)
	}
}

func TestRecognizer_ListenAfterCombinedWakeStaysInWakeMode(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newRecognizer(t, wake.Config{}, wake.WithClock(clock.Now))

	r.HandleTranscript(final("Hey Nara, where is Rand going?"))
	nextEvent(t, r)
	nextEvent(t, r)

	// Acknowledging the wake must not re-open command mode for the question
	// that is already on its way.
	r.Listen()
	if r.Mode() != wake.ModeWake {
		t.Fatalf("mode after acknowledging wake = %s, want wake", r.Mode())
	}
	clock.Advance(5 * time.Second)
	r.HandleTranscript(final("hey nara"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("got %s, want a second wake", e.Type)
	}

	// A later Listen, such as a voice barge-in, opens command mode as usual.
	r.Reset()
	r.Listen()
	if r.Mode() != wake.ModeCommand {
		t.Errorf("mode after plain Listen = %s, want command", r.Mode())
	}
}

func TestRecognizer_ListenAfterWakeOnlyReArms(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	r.HandleTranscript(partial("hey nara"))
	nextEvent(t, r)
	r.Listen()
	if r.Mode() != wake.ModeCommand {
		t.Fatalf("mode = %s, want command", r.Mode())
	}
	r.HandleTranscript(final("who is Moiraine?"))
	if e := nextEvent(t, r); e.Type != wake.EventUtterance || e.Text != "who is Moiraine?" {
		t.Fatalf("got %s %q", e.Type, e.Text)
	}
}

func TestRecognizer_CommandModeIgnoresBareWakePhrase(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	r.Listen()
	r.HandleTranscript(final("hey nara"))
	expectNoEvent(t, r, 50*time.Millisecond)
	if r.Mode() != wake.ModeCommand {
		t.Fatalf("mode = %s, want command", r.Mode())
	}

	r.HandleTranscript(partial("what time"))
	expectNoEvent(t, r, 20*time.Millisecond)

	r.HandleTranscript(final("what time is it"))
	if e := nextEvent(t, r); e.Type != wake.EventUtterance || e.Text != "what time is it" {
		t.Fatalf("got %s %q", e.Type, e.Text)
	}
}

func TestRecognizer_Debounce(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := newRecognizer(t, wake.Config{Debounce: 2 * time.Second}, wake.WithClock(clock.Now))

	r.HandleTranscript(partial("hey nara"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("got %s, want wake", e.Type)
	}
	r.Reset()

	clock.Advance(time.Second)
	r.HandleTranscript(partial("hey nara"))
	expectNoEvent(t, r, 50*time.Millisecond)
	if r.Mode() != wake.ModeWake {
		t.Fatalf("debounced detection changed mode to %s", r.Mode())
	}

	clock.Advance(1500 * time.Millisecond)
	r.HandleTranscript(partial("hey nara"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("got %s, want wake after debounce", e.Type)
	}
}

func TestRecognizer_CommandTimeout(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{CommandTimeout: 30 * time.Millisecond})

	r.HandleTranscript(partial("hey nara"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("got %s, want wake", e.Type)
	}
	if e := nextEvent(t, r); e.Type != wake.EventTimeout {
		t.Fatalf("got %s, want timeout", e.Type)
	}
	if r.Mode() != wake.ModeWake {
		t.Errorf("mode after timeout = %s, want wake", r.Mode())
	}
}

func TestRecognizer_UtteranceDisarmsTimeout(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{CommandTimeout: 30 * time.Millisecond})

	r.Listen()
	r.HandleTranscript(final("where are they going"))
	if e := nextEvent(t, r); e.Type != wake.EventUtterance {
		t.Fatalf("got %s, want utterance", e.Type)
	}
	expectNoEvent(t, r, 100*time.Millisecond)
}

func TestRecognizer_ResetDisarmsTimeout(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{CommandTimeout: 30 * time.Millisecond})

	r.Listen()
	r.Reset()
	expectNoEvent(t, r, 100*time.Millisecond)
	if r.Mode() != wake.ModeWake {
		t.Errorf("mode = %s, want wake", r.Mode())
	}
}

func TestRecognizer_DropsSystemTranscripts(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	r.HandleTranscript(types.Transcript{Text: "hey nara", IsFinal: true, Role: types.RoleSystem})
	expectNoEvent(t, r, 50*time.Millisecond)

	r.Listen()
	r.HandleTranscript(types.Transcript{Text: "Rand is a shepherd.", IsFinal: true, Role: types.RoleSystem})
	expectNoEvent(t, r, 50*time.Millisecond)
}

func TestRecognizer_Reconfigure(t *testing.T) {
	t.Parallel()
	r := newRecognizer(t, wake.Config{})

	if err := r.Reconfigure(wake.Config{Sensitivity: 1}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	r.HandleTranscript(partial("hey narrow"))
	expectNoEvent(t, r, 50*time.Millisecond)

	if err := r.Reconfigure(wake.Config{Sensitivity: 0.7}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	r.HandleTranscript(partial("hey narrow"))
	if e := nextEvent(t, r); e.Type != wake.EventWake {
		t.Fatalf("got %s, want wake", e.Type)
	}

	if err := r.Reconfigure(wake.Config{Sensitivity: 2}); err == nil {
		t.Error("expected error for sensitivity above 1")
	}
	if got := r.Config().Sensitivity; got != 0.7 {
		t.Errorf("failed reconfigure changed sensitivity to %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  wake.Config
	}{
		{"sensitivity too high", wake.Config{Sensitivity: 1.5}},
		{"negative sensitivity", wake.Config{Sensitivity: -0.1}},
		{"punctuation phrase", wake.Config{Phrase: "?!"}},
		{"negative debounce", wake.Config{Debounce: -time.Second}},
		{"negative timeout", wake.Config{CommandTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := wake.New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRecognizer_Close(t *testing.T) {
	t.Parallel()
	r, err := wake.New(wake.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Close()
	r.Close()
	r.HandleTranscript(final("hey nara who"))
	if _, ok := <-r.Events(); ok {
		t.Error("events channel should be closed")
	}
}
