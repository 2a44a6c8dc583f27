package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/nara/pkg/content"
)

// ErrContentUnavailable is returned when the allowed chapter has no
// transcript. Callers answer with a generic, non-spoiling response instead of
// surfacing the error.
var ErrContentUnavailable = errors.New("answer: content unavailable")

// Loaded is everything the pipeline read for one question.
type Loaded struct {
	Book    content.Book
	Chapter content.Chapter

	// Units are the allowed chapter's transcript units in document order.
	Units []content.TranscriptUnit

	// Summaries cover chapters strictly before the allowed chapter.
	Summaries []content.ChapterSummary
}

// Unit returns the unit with the given ordinal.
func (l *Loaded) Unit(ordinal int) (content.TranscriptUnit, bool) {
	for _, u := range l.Units {
		if u.Ordinal == ordinal {
			return u, true
		}
	}
	return content.TranscriptUnit{}, false
}

// Loader reads the allowed chapter from a [content.Store].
type Loader struct {
	store     content.Store
	summaries bool
}

// LoaderOption configures a [Loader].
type LoaderOption func(*Loader)

// WithoutSummaries disables loading prior chapter summaries.
func WithoutSummaries() LoaderOption {
	return func(l *Loader) { l.summaries = false }
}

// NewLoader creates a Loader over store.
func NewLoader(store content.Store, opts ...LoaderOption) *Loader {
	l := &Loader{store: store, summaries: true}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load fetches book metadata, chapter allowed and its transcript units. Units
// from any later chapter are dropped even if the store returns them. It
// returns [ErrContentUnavailable] when the chapter is unknown or has no units.
func (l *Loader) Load(ctx context.Context, audiobookID string, allowed int) (*Loaded, error) {
	if allowed < 0 {
		return nil, fmt.Errorf("answer: load: chapter %d: %w", allowed, ErrContentUnavailable)
	}

	book, err := l.store.Book(ctx, audiobookID)
	if err != nil {
		return nil, fmt.Errorf("answer: load book %q: %w", audiobookID, err)
	}

	chapter, err := l.store.Chapter(ctx, audiobookID, allowed)
	if errors.Is(err, content.ErrNotFound) {
		return nil, fmt.Errorf("answer: load chapter %d: %w", allowed, ErrContentUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("answer: load chapter %d: %w", allowed, err)
	}

	raw, err := l.store.Units(ctx, audiobookID, allowed)
	if err != nil {
		return nil, fmt.Errorf("answer: load units: %w", err)
	}
	units := make([]content.TranscriptUnit, 0, len(raw))
	for _, u := range raw {
		if u.ChapterIndex > allowed {
			continue
		}
		units = append(units, u)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("answer: load chapter %d: %w", allowed, ErrContentUnavailable)
	}

	loaded := &Loaded{Book: book, Chapter: chapter, Units: units}
	if l.summaries && allowed > 0 {
		sums, err := l.store.Summaries(ctx, audiobookID, allowed)
		if err != nil {
			return nil, fmt.Errorf("answer: load summaries: %w", err)
		}
		for _, s := range sums {
			if s.ChapterIndex < allowed && s.Text != "" {
				loaded.Summaries = append(loaded.Summaries, s)
			}
		}
	}
	return loaded, nil
}
