package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/nara/internal/app"
	"github.com/MrWong99/nara/internal/config"
	"github.com/MrWong99/nara/internal/events"
	eventsmock "github.com/MrWong99/nara/internal/events/mock"
	"github.com/MrWong99/nara/pkg/audio"
	audiomock "github.com/MrWong99/nara/pkg/audio/mock"
	"github.com/MrWong99/nara/pkg/content/contenttest"
	"github.com/MrWong99/nara/pkg/content/memstore"
	playbackmock "github.com/MrWong99/nara/pkg/playback/mock"
	"github.com/MrWong99/nara/pkg/provider/llm"
	llmmock "github.com/MrWong99/nara/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/nara/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/nara/pkg/provider/tts/mock"
	vadmock "github.com/MrWong99/nara/pkg/provider/vad/mock"
	"github.com/MrWong99/nara/pkg/types"
)

const thomReply = `{"answer_markdown": "**Thom** is a gleeman [p2].", "citations": []}`

// harness is a fully wired App backed by test doubles.
type harness struct {
	app     *app.App
	handler http.Handler
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	stt     *sttmock.Provider
	session *sttmock.Session
	player  *playbackmock.Adapter
	source  *audiomock.Source
	sink    *audiomock.Sink
	pub     *eventsmock.Publisher
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Providers.LLM.Name = "openai"
	cfg.Providers.STT.Name = "deepgram"
	cfg.Providers.TTS.Name = "elevenlabs"
	cfg.Content.AudiobookID = contenttest.BookID
	cfg.Content.UserID = "alice"
	cfg.Content.PollInterval = 10 * time.Millisecond
	config.ApplyDefaults(cfg)
	return cfg
}

func newHarness(t *testing.T, withSTT bool, tweaks ...func(*config.Config, *app.Providers)) *harness {
	t.Helper()

	store := memstore.New()
	contenttest.Seed(t, store)

	h := &harness{
		llm:    &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: thomReply}},
		tts:    &ttsmock.Provider{},
		player: &playbackmock.Adapter{Playing: true, Position: 2000},
		source: audiomock.NewSource(audio.Format{SampleRate: 16000, Channels: 1}, 16),
		sink:   &audiomock.Sink{},
		pub:    &eventsmock.Publisher{},
	}
	providers := &app.Providers{LLM: h.llm, TTS: h.tts, Playback: h.player}
	if withSTT {
		h.session = sttmock.NewSession(8)
		h.stt = &sttmock.Provider{Session: h.session}
		providers.STT = h.stt
	}
	cfg := testConfig()
	for _, tw := range tweaks {
		tw(cfg, providers)
	}

	a, err := app.New(context.Background(), cfg, providers,
		app.WithContentStore(store),
		app.WithAudio(h.source, h.sink),
		app.WithPublisher(h.pub),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.app = a
	h.handler = a.Handler()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return h
}

// run starts the app and waits until the progress tracker has observed the
// player. It stops the app when the test ends.
func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v, want context.Canceled", err)
			}
		case <-time.After(3 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})

	waitFor(t, "tracker to observe chapter 1", func() bool {
		return h.state(t).PlaybackChapter == 1
	})
}

type state struct {
	State           string  `json:"state"`
	Muted           bool    `json:"muted"`
	AudiobookID     string  `json:"audiobook_id"`
	PositionSeconds float64 `json:"position_seconds"`
	PlaybackChapter int     `json:"playback_chapter"`
	ProgressChapter int     `json:"progress_chapter"`
	LastAnswer      *struct {
		Markdown    string   `json:"markdown"`
		JumpSeconds *float64 `json:"jump_seconds"`
	} `json:"last_answer"`
}

func (h *harness) state(t *testing.T) state {
	t.Helper()
	rec := h.do(t, http.MethodGet, "/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/state = %d", rec.Code)
	}
	var s state
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return s
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) waitEvent(t *testing.T) events.Event {
	t.Helper()
	var got []events.Event
	waitFor(t, "interaction event", func() bool {
		got = h.pub.Events()
		return len(got) > 0
	})
	return got[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func withoutState(calls []string) []string {
	return slices.DeleteFunc(slices.Clone(calls), func(c string) bool { return c == "state" })
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers *app.Providers
	}{
		{name: "nil providers", providers: nil},
		{name: "no llm", providers: &app.Providers{TTS: &ttsmock.Provider{}}},
		{name: "no tts", providers: &app.Providers{LLM: &llmmock.Provider{}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(context.Background(), testConfig(), tc.providers); err == nil {
				t.Fatal("New returned nil error")
			}
		})
	}
}

func TestApp_AskAnswersAndJumps(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	h.run(t)

	rec := h.do(t, http.MethodPost, "/v1/ask", `{"question": "who is thom?"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /v1/ask = %d, body %s", rec.Code, rec.Body.String())
	}

	ev := h.waitEvent(t)
	if ev.Outcome != "completed" {
		t.Fatalf("outcome = %q (err %q), want completed", ev.Outcome, ev.Error)
	}
	if ev.Question != "who is thom?" {
		t.Errorf("question = %q", ev.Question)
	}
	if ev.AudiobookID != contenttest.BookID {
		t.Errorf("audiobook_id = %q", ev.AudiobookID)
	}
	if ev.AllowedChapter == nil || *ev.AllowedChapter != 1 {
		t.Errorf("allowed chapter = %v, want 1", ev.AllowedChapter)
	}
	if !strings.Contains(ev.Answer, "gleeman") {
		t.Errorf("answer = %q", ev.Answer)
	}

	if got := h.tts.Spoken(); !slices.Equal(got, []string{"Thom is a gleeman."}) {
		t.Errorf("spoken = %q", got)
	}
	if got := withoutState(h.player.CallLog()); !slices.Equal(got, []string{"pause", "resume"}) {
		t.Errorf("playback calls = %v, want [pause resume]", got)
	}

	s := h.state(t)
	if s.LastAnswer == nil || s.LastAnswer.JumpSeconds == nil || *s.LastAnswer.JumpSeconds != 1850 {
		t.Fatalf("last answer = %+v, want jump to 1850", s.LastAnswer)
	}

	rec = h.do(t, http.MethodPost, "/v1/jump", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/jump = %d, body %s", rec.Code, rec.Body.String())
	}
	var jump struct {
		PositionSeconds float64 `json:"position_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &jump); err != nil {
		t.Fatalf("decode jump: %v", err)
	}
	if jump.PositionSeconds != 1850 {
		t.Errorf("position = %v, want 1850", jump.PositionSeconds)
	}
	if !slices.Equal(h.player.Seeks, []float64{1850}) {
		t.Errorf("seeks = %v, want [1850]", h.player.Seeks)
	}
}

func TestApp_SpokenQuestion(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	h.run(t)

	h.source.Push(audio.AudioFrame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1})
	waitFor(t, "stt to receive audio", func() bool { return h.session.ChunkCount() > 0 })

	h.session.FinalsCh <- types.Transcript{Text: "hey nara who is thom", IsFinal: true, Confidence: 0.95}

	ev := h.waitEvent(t)
	if ev.Outcome != "completed" {
		t.Fatalf("outcome = %q (err %q), want completed", ev.Outcome, ev.Error)
	}
	if !strings.Contains(strings.ToLower(ev.Question), "who is thom") {
		t.Errorf("question = %q", ev.Question)
	}
	if h.stt.StartStreamCallCount() != 1 {
		t.Errorf("StartStream calls = %d, want 1", h.stt.StartStreamCallCount())
	}
}

func TestApp_ContinuousListeningStartsOnSpeech(t *testing.T) {
	t.Parallel()
	engine := &vadmock.Engine{Session: &vadmock.Session{Script: vadmock.Utterance(5)}}
	h := newHarness(t, true, func(cfg *config.Config, p *app.Providers) {
		cfg.Voice.ListenMode = "continuous"
		p.VAD = engine
	})
	h.run(t)

	// 20 ms at 16 kHz mono is one VAD frame.
	h.source.Push(audio.AudioFrame{Data: make([]byte, 640), SampleRate: 16000, Channels: 1})

	waitFor(t, "listening state", func() bool { return h.state(t).State == "listening" })
	if got := withoutState(h.player.CallLog()); !slices.Equal(got, []string{"pause"}) {
		t.Errorf("playback calls = %v, want [pause]", got)
	}

	cfgs := engine.Configs()
	if len(cfgs) != 1 {
		t.Fatalf("NewSession calls = %d, want 1", len(cfgs))
	}
	if c := cfgs[0]; c.SampleRate != 16000 || c.FrameSizeMs != 20 {
		t.Errorf("vad config = %+v, want 16000 Hz / 20 ms", c)
	}
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "ask bad json", method: http.MethodPost, path: "/v1/ask", body: "{", want: http.StatusBadRequest},
		{name: "ask empty question", method: http.MethodPost, path: "/v1/ask", body: `{"question": ""}`, want: http.StatusBadRequest},
		{name: "jump before any answer", method: http.MethodPost, path: "/v1/jump", want: http.StatusConflict},
		{name: "ask wrong method", method: http.MethodGet, path: "/v1/ask", want: http.StatusMethodNotAllowed},
		{name: "liveness", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := h.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("%s %s = %d, want %d (body %s)", tc.method, tc.path, rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_StateBeforeRun(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)

	s := h.state(t)
	if s.State != "idle" {
		t.Errorf("state = %q, want idle", s.State)
	}
	if s.AudiobookID != contenttest.BookID {
		t.Errorf("audiobook_id = %q", s.AudiobookID)
	}
	if s.LastAnswer != nil {
		t.Errorf("last answer = %+v, want none", s.LastAnswer)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)

	if err := h.app.ApplyConfig(config.ConfigDiff{MutedChanged: true, NewMuted: true}); err != nil {
		t.Fatalf("ApplyConfig(mute): %v", err)
	}
	if !h.state(t).Muted {
		t.Error("muted = false after ApplyConfig")
	}

	if err := h.app.ApplyConfig(config.ConfigDiff{ModeHintChanged: true, NewModeHint: "focused"}); err != nil {
		t.Errorf("ApplyConfig(focused): %v", err)
	}
	if err := h.app.ApplyConfig(config.ConfigDiff{ModeHintChanged: true, NewModeHint: "everything"}); err == nil {
		t.Error("ApplyConfig(invalid mode) returned nil error")
	}
}

func TestApp_AskRejectsEmpty(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	if err := h.app.Ask(context.Background(), ""); err == nil {
		t.Fatal("Ask(\"\") returned nil error")
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	for range 2 {
		if err := h.app.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
}
