package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/content/contenttest"
	"github.com/MrWong99/nara/pkg/content/sqlite"
)

func openTemp(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "data", "content.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	t.Parallel()
	contenttest.Run(t, func(t *testing.T) contenttest.ReadWriter { return openTemp(t) })
}

func TestProgressTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	contenttest.Seed(t, s)

	p, err := s.Progress(ctx, "alice", contenttest.BookID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !p.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", p.UpdatedAt, want)
	}

	if err := s.SaveProgress(ctx, content.Progress{UserID: "bob", AudiobookID: contenttest.BookID}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	bob, err := s.Progress(ctx, "bob", contenttest.BookID)
	if err != nil {
		t.Fatalf("Progress(bob): %v", err)
	}
	if bob.UpdatedAt.IsZero() {
		t.Error("zero UpdatedAt should be stamped on save")
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "content.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	contenttest.Seed(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	units, err := s.Units(ctx, contenttest.BookID, 1)
	if err != nil || len(units) != 3 {
		t.Errorf("Units after reopen = %d, %v; want 3, nil", len(units), err)
	}
}
