// Package progress tracks where the listener is in the audiobook.
//
// A [Tracker] polls the playback adapter, maps the playhead to a chapter and
// combines it with the listener's furthest legitimate progress into an
// immutable [content.PlaybackContext] snapshot. Progress only moves forward:
// it advances when the playhead crosses into a later chapter through normal
// listening, never when the listener seeks ahead.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/playback"
)

const (
	defaultPollInterval = 2 * time.Second

	// seekSlack is added to the elapsed wall time when deciding whether a
	// forward move of the playhead was listening or a seek.
	seekSlack = 5 * time.Second
)

// Config configures a Tracker.
type Config struct {
	AudiobookID  string
	UserID       string
	PollInterval time.Duration
}

// Option configures a [Tracker].
type Option func(*Tracker)

// WithClock overrides the wall clock used to tell listening from seeking.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithProgressWriter persists progress whenever it advances.
func WithProgressWriter(w content.Writer) Option {
	return func(t *Tracker) { t.writer = w }
}

// Tracker polls the player and publishes PlaybackContext snapshots.
// Snapshot is safe for concurrent use; Poll and Run are not meant to be
// called concurrently with each other.
type Tracker struct {
	store  content.Store
	player playback.Adapter
	writer content.Writer
	cfg    Config
	now    func() time.Time

	chapters []content.Chapter

	// Last observation, used to tell listening from seeking.
	lastPos  float64
	lastAt   time.Time
	observed bool

	mu       sync.RWMutex
	snap     content.PlaybackContext
	progress int
	loaded   bool
}

// New creates a Tracker. Call [Tracker.Poll] once before serving questions,
// then [Tracker.Run] in the background.
func New(store content.Store, player playback.Adapter, cfg Config, opts ...Option) (*Tracker, error) {
	if store == nil || player == nil {
		return nil, errors.New("progress: store and player are required")
	}
	if cfg.AudiobookID == "" {
		return nil, errors.New("progress: audiobook id is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	t := &Tracker{
		store:    store,
		player:   player,
		cfg:      cfg,
		now:      time.Now,
		progress: -1,
		snap:     content.PlaybackContext{AudiobookID: cfg.AudiobookID},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Snapshot returns the latest playback context.
func (t *Tracker) Snapshot() content.PlaybackContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Run polls once immediately and then every poll interval until ctx is
// cancelled. Poll errors are logged and retried on the next tick.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := t.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("progress: poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll takes one observation of the player and updates the snapshot.
func (t *Tracker) Poll(ctx context.Context) error {
	if err := t.ensureLoaded(ctx); err != nil {
		return err
	}

	st, err := t.player.State(ctx)
	if errors.Is(err, playback.ErrNoActiveDevice) {
		slog.Debug("progress: no active player, keeping last position")
		return nil
	}
	if err != nil {
		return fmt.Errorf("progress: player state: %w", err)
	}

	now := t.now()
	chapter := content.ChapterAt(t.chapters, st.PositionSeconds)
	listened := t.listenedTo(st.PositionSeconds, now)
	t.lastPos, t.lastAt, t.observed = st.PositionSeconds, now, true

	t.mu.Lock()
	advanced := false
	if t.progress < 0 || (listened && chapter > t.progress) {
		advanced = t.progress >= 0
		t.progress = max(t.progress, chapter)
	}
	t.snap = content.PlaybackContext{
		AudiobookID:     t.cfg.AudiobookID,
		PositionSeconds: st.PositionSeconds,
		PlaybackChapter: chapter,
		ProgressChapter: t.progress,
	}
	progress := t.progress
	t.mu.Unlock()

	if advanced {
		slog.Info("progress: listener reached chapter", "chapter", progress)
		t.save(ctx, progress, st.PositionSeconds, now)
	}
	return nil
}

// listenedTo reports whether moving from the last observed position to pos
// is consistent with plain listening since the last poll.
func (t *Tracker) listenedTo(pos float64, now time.Time) bool {
	if !t.observed {
		return false
	}
	delta := pos - t.lastPos
	if delta < 0 {
		return false
	}
	elapsed := now.Sub(t.lastAt) + seekSlack
	return delta <= elapsed.Seconds()
}

// ensureLoaded reads the chapter layout and stored progress once.
func (t *Tracker) ensureLoaded(ctx context.Context) error {
	t.mu.RLock()
	loaded := t.loaded
	t.mu.RUnlock()
	if loaded {
		return nil
	}

	chapters, err := t.store.Chapters(ctx, t.cfg.AudiobookID)
	if err != nil {
		return fmt.Errorf("progress: chapters: %w", err)
	}
	if len(chapters) == 0 {
		return fmt.Errorf("progress: book %q has no chapters: %w", t.cfg.AudiobookID, content.ErrNotFound)
	}

	stored := -1
	if t.cfg.UserID != "" {
		p, err := t.store.Progress(ctx, t.cfg.UserID, t.cfg.AudiobookID)
		switch {
		case errors.Is(err, content.ErrNotFound):
			slog.Info("progress: no stored progress, starting from the first observed position", "user_id", t.cfg.UserID)
		case err != nil:
			return fmt.Errorf("progress: stored progress: %w", err)
		default:
			stored = p.ChapterIndex
		}
	}

	t.chapters = chapters
	t.mu.Lock()
	t.progress = max(t.progress, stored)
	t.loaded = true
	t.mu.Unlock()
	return nil
}

func (t *Tracker) save(ctx context.Context, chapter int, pos float64, at time.Time) {
	if t.writer == nil || t.cfg.UserID == "" {
		return
	}
	err := t.writer.SaveProgress(ctx, content.Progress{
		UserID:          t.cfg.UserID,
		AudiobookID:     t.cfg.AudiobookID,
		ChapterIndex:    chapter,
		PositionSeconds: pos,
		UpdatedAt:       at,
	})
	if err != nil {
		slog.Warn("progress: save failed", "chapter", chapter, "err", err)
	}
}
