package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] polls the config file.
const DefaultWatchInterval = 5 * time.Second

// Watcher polls a config file and hands hot-reloadable changes to a callback.
// A reload that fails to parse or validate is logged and the previous config
// stays current. Changes to sections that need a restart are logged and
// otherwise ignored.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(ConfigDiff, *Config)

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and returns a watcher holding it as the current
// config. onChange runs on the polling goroutine whenever a reload changes a
// hot-reloadable field; it may be nil.
func NewWatcher(path string, onChange func(ConfigDiff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash, w.lastMtime = cfg, hash, mtime
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				slog.Warn("config: reload failed, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Check reloads the file if its mtime moved and its content hash changed.
// It returns the hot-reloadable diff, which is zero when nothing applicable
// changed. onChange is called only for a non-empty diff.
func (w *Watcher) Check() (ConfigDiff, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return ConfigDiff{}, nil
	}

	cfg, hash, mtime, err := w.load()
	if err != nil {
		return ConfigDiff{}, err
	}

	w.mu.Lock()
	w.lastMtime = mtime
	if hash == w.lastHash {
		w.mu.Unlock()
		return ConfigDiff{}, nil
	}
	old := w.current
	w.current, w.lastHash = cfg, hash
	w.mu.Unlock()

	if sections := RestartRequired(old, cfg); len(sections) > 0 {
		slog.Warn("config: changes need a restart to take effect", "sections", sections)
	}
	d := Diff(old, cfg)
	if d.Any() {
		slog.Info("config: reloaded", "path", w.path)
		if w.onChange != nil {
			w.onChange(d, cfg)
		}
	}
	return d, nil
}

// RestartRequired lists the config sections that differ between old and new
// in ways [Diff] cannot apply live.
func RestartRequired(old, new *Config) []string {
	var out []string
	changed := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	changed("server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr)
	changed("server.tls", old.Server.TLS, new.Server.TLS)
	changed("providers", old.Providers, new.Providers)
	changed("voice.wake.phrase", old.Voice.Wake.Phrase, new.Voice.Wake.Phrase)
	changed("voice.wake.command_timeout", old.Voice.Wake.CommandTimeout, new.Voice.Wake.CommandTimeout)
	changed("voice.listen_mode", old.Voice.ListenMode, new.Voice.ListenMode)
	changed("content", old.Content, new.Content)
	changed("cache", old.Cache, new.Cache)
	changed("events", old.Events, new.Events)
	changed("audio", old.Audio, new.Audio)
	return out
}

func (w *Watcher) load() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
