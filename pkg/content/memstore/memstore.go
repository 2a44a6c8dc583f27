// Package memstore provides a thread-safe, in-memory content store.
//
// It implements both [content.Store] and [content.Writer] and is suitable for
// tests, demos and the "memory" content driver. The zero value is not usable;
// call [New].
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/nara/pkg/content"
)

// Compile-time assertions.
var (
	_ content.Store  = (*Store)(nil)
	_ content.Writer = (*Store)(nil)
)

type book struct {
	meta      content.Book
	chapters  map[int]content.Chapter
	units     map[int][]content.TranscriptUnit
	summaries map[int]string
}

// Store is an in-memory content store.
type Store struct {
	mu       sync.RWMutex
	books    map[string]*book
	progress map[string]content.Progress

	// PingErr, if non-nil, is returned by Ping. Lets tests exercise readiness
	// probes without a real database.
	PingErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		books:    make(map[string]*book),
		progress: make(map[string]content.Progress),
	}
}

func progressKey(userID, bookID string) string { return userID + "\x00" + bookID }

// bookLocked returns the book, creating it on demand. Caller holds mu.
func (s *Store) bookLocked(id string) *book {
	b, ok := s.books[id]
	if !ok {
		b = &book{
			meta:      content.Book{ID: id},
			chapters:  make(map[int]content.Chapter),
			units:     make(map[int][]content.TranscriptUnit),
			summaries: make(map[int]string),
		}
		s.books[id] = b
	}
	return b
}

// ── content.Writer ───────────────────────────────────────────────────────────

// PutBook implements [content.Writer].
func (s *Store) PutBook(_ context.Context, b content.Book) error {
	if b.ID == "" {
		return fmt.Errorf("memstore: book id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookLocked(b.ID).meta = b
	return nil
}

// PutChapter implements [content.Writer].
func (s *Store) PutChapter(_ context.Context, bookID string, c content.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookLocked(bookID).chapters[c.Index] = c
	return nil
}

// PutUnits implements [content.Writer]. Units replace any existing unit with
// the same chapter and ordinal.
func (s *Store) PutUnits(_ context.Context, bookID string, units []content.TranscriptUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bookLocked(bookID)
	for _, u := range units {
		existing := b.units[u.ChapterIndex]
		i := slices.IndexFunc(existing, func(e content.TranscriptUnit) bool { return e.Ordinal == u.Ordinal })
		if i >= 0 {
			existing[i] = u
		} else {
			existing = append(existing, u)
		}
		slices.SortFunc(existing, func(a, b content.TranscriptUnit) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
		b.units[u.ChapterIndex] = existing
	}
	return nil
}

// PutSummary implements [content.Writer].
func (s *Store) PutSummary(_ context.Context, bookID string, sum content.ChapterSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookLocked(bookID).summaries[sum.ChapterIndex] = sum.Text
	return nil
}

// SaveProgress implements [content.Writer].
func (s *Store) SaveProgress(_ context.Context, p content.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progressKey(p.UserID, p.AudiobookID)] = p
	return nil
}

// ── content.Store ────────────────────────────────────────────────────────────

// Book implements [content.Store].
func (s *Store) Book(_ context.Context, id string) (content.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return content.Book{}, content.ErrNotFound
	}
	return b.meta, nil
}

// Chapter implements [content.Store].
func (s *Store) Chapter(_ context.Context, bookID string, index int) (content.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return content.Chapter{}, content.ErrNotFound
	}
	c, ok := b.chapters[index]
	if !ok {
		return content.Chapter{}, content.ErrNotFound
	}
	return c, nil
}

// Chapters implements [content.Store].
func (s *Store) Chapters(_ context.Context, bookID string) ([]content.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return nil, nil
	}
	out := make([]content.Chapter, 0, len(b.chapters))
	for _, c := range b.chapters {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b content.Chapter) int { return cmp.Compare(a.Index, b.Index) })
	return out, nil
}

// Units implements [content.Store].
func (s *Store) Units(_ context.Context, bookID string, chapterIndex int) ([]content.TranscriptUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(b.units[chapterIndex]), nil
}

// Summaries implements [content.Store].
func (s *Store) Summaries(_ context.Context, bookID string, beforeChapter int) ([]content.ChapterSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[bookID]
	if !ok {
		return nil, nil
	}
	var out []content.ChapterSummary
	for idx, text := range b.summaries {
		if idx < beforeChapter {
			out = append(out, content.ChapterSummary{ChapterIndex: idx, Text: text})
		}
	}
	slices.SortFunc(out, func(a, b content.ChapterSummary) int { return cmp.Compare(a.ChapterIndex, b.ChapterIndex) })
	return out, nil
}

// Progress implements [content.Store].
func (s *Store) Progress(_ context.Context, userID, bookID string) (content.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey(userID, bookID)]
	if !ok {
		return content.Progress{}, content.ErrNotFound
	}
	return p, nil
}

// Ping implements [content.Store].
func (s *Store) Ping(context.Context) error { return s.PingErr }
