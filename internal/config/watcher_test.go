package config_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/nara/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
content:
  audiobook_id: wheel-of-time-1
voice:
  wake:
    sensitivity: 0.7
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
content:
  audiobook_id: wheel-of-time-1
voice:
  wake:
    sensitivity: 0.8
`

const watcherRestartOnlyYAML = `
server:
  log_level: info
providers:
  llm:
    name: anthropic
  tts:
    name: elevenlabs
content:
  audiobook_id: wheel-of-time-1
voice:
  wake:
    sensitivity: 0.7
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// rewrite replaces the file content and moves its mtime forward so the
// change is visible regardless of filesystem timestamp granularity.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if bump == 0 {
		return
	}
	ts := time.Now().Add(bump)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

type diffRecorder struct {
	diffs []config.ConfigDiff
	cfgs  []*config.Config
}

func (r *diffRecorder) record(d config.ConfigDiff, cfg *config.Config) {
	r.diffs = append(r.diffs, d)
	r.cfgs = append(r.cfgs, cfg)
}

func newWatcher(t *testing.T, initial string) (*config.Watcher, string, *diffRecorder) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, initial, 0)
	rec := &diffRecorder{}
	w, err := config.NewWatcher(path, rec.record)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, rec
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, rec := newWatcher(t, watcherValidYAML)

	cfg := w.Current()
	if cfg.Content.AudiobookID != "wheel-of-time-1" {
		t.Errorf("AudiobookID = %q", cfg.Content.AudiobookID)
	}
	if cfg.Voice.Wake.Sensitivity != 0.7 {
		t.Errorf("Sensitivity = %v, want 0.7", cfg.Voice.Wake.Sensitivity)
	}
	if len(rec.diffs) != 0 {
		t.Errorf("callback fired %d times on initial load", len(rec.diffs))
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		next         string
		bump         time.Duration
		wantErr      bool
		wantCalls    int
		wantLevel    config.LogLevel
		wantSens     float64
		wantProvider string
	}{
		{
			name:         "hot-reloadable change",
			next:         watcherUpdatedYAML,
			bump:         2 * time.Second,
			wantCalls:    1,
			wantLevel:    config.LogDebug,
			wantSens:     0.8,
			wantProvider: "openai",
		},
		{
			name:         "restart-only change swaps config without callback",
			next:         watcherRestartOnlyYAML,
			bump:         2 * time.Second,
			wantLevel:    config.LogInfo,
			wantSens:     0.7,
			wantProvider: "anthropic",
		},
		{
			name:         "invalid file keeps previous config",
			next:         watcherInvalidYAML,
			bump:         2 * time.Second,
			wantErr:      true,
			wantLevel:    config.LogInfo,
			wantSens:     0.7,
			wantProvider: "openai",
		},
		{
			name:         "touch without content change",
			next:         watcherValidYAML,
			bump:         2 * time.Second,
			wantLevel:    config.LogInfo,
			wantSens:     0.7,
			wantProvider: "openai",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, path, rec := newWatcher(t, watcherValidYAML)
			rewrite(t, path, tc.next, tc.bump)

			d, err := w.Check()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Check() err = %v, wantErr %v", err, tc.wantErr)
			}
			if len(rec.diffs) != tc.wantCalls {
				t.Fatalf("callback calls = %d, want %d", len(rec.diffs), tc.wantCalls)
			}
			if tc.wantCalls > 0 {
				if !d.LogLevelChanged || !d.WakeChanged {
					t.Errorf("diff = %+v, want log level and wake changes", d)
				}
				if rec.cfgs[0] != w.Current() {
					t.Error("callback config is not the current config")
				}
			} else if d.Any() {
				t.Errorf("diff = %+v, want empty", d)
			}

			cfg := w.Current()
			if cfg.Server.LogLevel != tc.wantLevel {
				t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, tc.wantLevel)
			}
			if cfg.Voice.Wake.Sensitivity != tc.wantSens {
				t.Errorf("Sensitivity = %v, want %v", cfg.Voice.Wake.Sensitivity, tc.wantSens)
			}
			if cfg.Providers.LLM.Name != tc.wantProvider {
				t.Errorf("LLM = %q, want %q", cfg.Providers.LLM.Name, tc.wantProvider)
			}
		})
	}
}

func TestWatcher_CheckWithoutMtimeChange(t *testing.T) {
	t.Parallel()
	w, path, rec := newWatcher(t, watcherValidYAML)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	rewrite(t, path, watcherUpdatedYAML, 0)
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(rec.diffs) != 0 {
		t.Errorf("callback fired without an mtime change")
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("config reloaded without an mtime change")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, watcherValidYAML, 0)

	changed := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(d config.ConfigDiff, _ *config.Config) {
		select {
		case changed <- d:
		default:
		}
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, watcherUpdatedYAML, 2*time.Second)
	select {
	case d := <-changed:
		if d.NewLogLevel != config.LogDebug {
			t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not pick up the change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{"identical", func(*config.Config) {}, nil},
		{"hot-reloadable only", func(c *config.Config) { c.Voice.Muted = true }, nil},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, []string{"server.listen_addr"}},
		{"wake phrase", func(c *config.Config) { c.Voice.Wake.Phrase = "hey book" }, []string{"voice.wake.phrase"}},
		{
			name: "provider and book",
			mutate: func(c *config.Config) {
				c.Providers.TTS.Model = "eleven_turbo_v2"
				c.Content.AudiobookID = "eye-of-the-world"
			},
			want: []string{"providers", "content"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)
			if got := config.RestartRequired(old, new); !slices.Equal(got, tc.want) {
				t.Errorf("RestartRequired = %v, want %v", got, tc.want)
			}
		})
	}
}
