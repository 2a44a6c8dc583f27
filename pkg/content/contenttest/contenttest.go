// Package contenttest provides a behavioural test suite shared by every
// content.Store implementation.
//
// Each backend's tests open a fresh, empty store and hand it to [Run]:
//
//	func TestConformance(t *testing.T) {
//	    contenttest.Run(t, func(t *testing.T) contenttest.ReadWriter { return openStore(t) })
//	}
package contenttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/nara/pkg/content"
)

// ReadWriter is a store that can be both seeded and queried.
type ReadWriter interface {
	content.Store
	content.Writer
}

// BookID is the audiobook seeded by [Seed].
const BookID = "wheel-of-time-1"

// Seed writes a three-chapter book with summaries for chapters 0 and 1 and
// progress for listener "alice" in chapter 1.
func Seed(t *testing.T, w content.Writer) {
	t.Helper()
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	must(w.PutBook(ctx, content.Book{ID: BookID, Title: "The Eye of the World", Author: "Robert Jordan"}))
	for i, span := range [][2]float64{{0, 1800}, {1800, 3900}, {3900, 6000}} {
		must(w.PutChapter(ctx, BookID, content.Chapter{Index: i, Title: "Chapter", StartSeconds: span[0], EndSeconds: span[1]}))
	}
	must(w.PutUnits(ctx, BookID, []content.TranscriptUnit{
		{ChapterIndex: 1, Ordinal: 2, StartSeconds: 1850, EndSeconds: 1900, Text: "Thom Merrilin juggles in the common room."},
		{ChapterIndex: 1, Ordinal: 1, StartSeconds: 1800, EndSeconds: 1850, Text: "Rand and Mat arrive at the Winespring Inn."},
		{ChapterIndex: 1, Ordinal: 3, Text: "An untimed aside."},
		{ChapterIndex: 2, Ordinal: 1, StartSeconds: 3900, EndSeconds: 3950, Text: "Trollocs attack Emond's Field."},
	}))
	must(w.PutSummary(ctx, BookID, content.ChapterSummary{ChapterIndex: 0, Text: "Rand and Tam ride to Emond's Field."}))
	must(w.PutSummary(ctx, BookID, content.ChapterSummary{ChapterIndex: 1, Text: "A gleeman arrives."}))
	must(w.SaveProgress(ctx, content.Progress{
		UserID: "alice", AudiobookID: BookID, ChapterIndex: 1, PositionSeconds: 2000,
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
}

// Run executes the conformance suite. open must return a fresh, empty store.
func Run(t *testing.T, open func(t *testing.T) ReadWriter) {
	t.Helper()
	ctx := context.Background()

	t.Run("Book", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		b, err := s.Book(ctx, BookID)
		if err != nil {
			t.Fatalf("Book: %v", err)
		}
		if b.Title != "The Eye of the World" || b.Author != "Robert Jordan" {
			t.Errorf("Book = %+v", b)
		}
		if _, err := s.Book(ctx, "missing"); !errors.Is(err, content.ErrNotFound) {
			t.Errorf("Book(missing) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("Chapters", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		c, err := s.Chapter(ctx, BookID, 1)
		if err != nil {
			t.Fatalf("Chapter: %v", err)
		}
		if c.StartSeconds != 1800 || c.EndSeconds != 3900 {
			t.Errorf("Chapter(1) = %+v", c)
		}
		if _, err := s.Chapter(ctx, BookID, 9); !errors.Is(err, content.ErrNotFound) {
			t.Errorf("Chapter(9) err = %v, want ErrNotFound", err)
		}
		all, err := s.Chapters(ctx, BookID)
		if err != nil {
			t.Fatalf("Chapters: %v", err)
		}
		if len(all) != 3 || all[0].Index != 0 || all[2].Index != 2 {
			t.Errorf("Chapters = %+v", all)
		}
	})

	t.Run("UnitsOrderedAndScoped", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		units, err := s.Units(ctx, BookID, 1)
		if err != nil {
			t.Fatalf("Units: %v", err)
		}
		if len(units) != 3 {
			t.Fatalf("got %d units, want 3", len(units))
		}
		for i, u := range units {
			if u.Ordinal != i+1 || u.ChapterIndex != 1 {
				t.Errorf("unit %d = %+v", i, u)
			}
		}
		if !units[0].Timed() || units[2].Timed() {
			t.Errorf("timing flags wrong: %+v", units)
		}
		empty, err := s.Units(ctx, BookID, 0)
		if err != nil || len(empty) != 0 {
			t.Errorf("Units(0) = %v, %v; want empty, nil", empty, err)
		}
	})

	t.Run("UnitsUpsert", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		if err := s.PutUnits(ctx, BookID, []content.TranscriptUnit{{ChapterIndex: 2, Ordinal: 1, Text: "rewritten"}}); err != nil {
			t.Fatalf("PutUnits: %v", err)
		}
		units, _ := s.Units(ctx, BookID, 2)
		if len(units) != 1 || units[0].Text != "rewritten" {
			t.Errorf("Units(2) = %+v", units)
		}
	})

	t.Run("SummariesStrictlyBefore", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		sums, err := s.Summaries(ctx, BookID, 1)
		if err != nil {
			t.Fatalf("Summaries: %v", err)
		}
		if len(sums) != 1 || sums[0].ChapterIndex != 0 {
			t.Errorf("Summaries(<1) = %+v", sums)
		}
		sums, _ = s.Summaries(ctx, BookID, 0)
		if len(sums) != 0 {
			t.Errorf("Summaries(<0) = %+v, want none", sums)
		}
	})

	t.Run("Progress", func(t *testing.T) {
		s := open(t)
		Seed(t, s)
		p, err := s.Progress(ctx, "alice", BookID)
		if err != nil {
			t.Fatalf("Progress: %v", err)
		}
		if p.ChapterIndex != 1 || p.PositionSeconds != 2000 {
			t.Errorf("Progress = %+v", p)
		}
		if _, err := s.Progress(ctx, "bob", BookID); !errors.Is(err, content.ErrNotFound) {
			t.Errorf("Progress(bob) err = %v, want ErrNotFound", err)
		}
		p.ChapterIndex = 2
		if err := s.SaveProgress(ctx, p); err != nil {
			t.Fatalf("SaveProgress: %v", err)
		}
		if got, _ := s.Progress(ctx, "alice", BookID); got.ChapterIndex != 2 {
			t.Errorf("progress not updated: %+v", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := open(t).Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
