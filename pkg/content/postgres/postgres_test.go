package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/content/contenttest"
)

// ---------------------------------------------------------------------------
// Mock DB
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execErr      error
	execs        []execCall
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("mockDB: Query not supported")
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

// ---------------------------------------------------------------------------
// Unit tests
// ---------------------------------------------------------------------------

func TestNotFoundMapping(t *testing.T) {
	t.Parallel()

	s := New(&mockDB{})
	ctx := context.Background()

	if _, err := s.Book(ctx, "x"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Book err = %v, want ErrNotFound", err)
	}
	if _, err := s.Chapter(ctx, "x", 1); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Chapter err = %v, want ErrNotFound", err)
	}
	if _, err := s.Progress(ctx, "u", "x"); !errors.Is(err, content.ErrNotFound) {
		t.Errorf("Progress err = %v, want ErrNotFound", err)
	}
}

func TestOtherErrorsNotMapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	s := New(&mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(...any) error { return boom }}
	}})
	_, err := s.Book(context.Background(), "x")
	if errors.Is(err, content.ErrNotFound) || !errors.Is(err, boom) {
		t.Errorf("Book err = %v, want wrapped %v", err, boom)
	}
}

func TestBookScan(t *testing.T) {
	t.Parallel()

	s := New(&mockDB{queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
		if !strings.Contains(sql, "FROM books") || args[0] != "b1" {
			t.Errorf("unexpected query %q %v", sql, args)
		}
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*string) = "b1"
			*dest[1].(*string) = "Dune"
			*dest[2].(*string) = "Frank Herbert"
			return nil
		}}
	}})
	b, err := s.Book(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if b.Title != "Dune" || b.Author != "Frank Herbert" {
		t.Errorf("Book = %+v", b)
	}
}

func TestSaveProgress_ZeroTimeSendsNull(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := New(db)
	ctx := context.Background()

	if err := s.SaveProgress(ctx, content.Progress{UserID: "u", AudiobookID: "b", ChapterIndex: 2}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	when := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := s.SaveProgress(ctx, content.Progress{UserID: "u", AudiobookID: "b", UpdatedAt: when}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("got %d execs, want 2", len(db.execs))
	}
	if db.execs[0].args[4] != nil {
		t.Errorf("zero UpdatedAt should be sent as NULL, got %v", db.execs[0].args[4])
	}
	if db.execs[1].args[4] != when {
		t.Errorf("UpdatedAt = %v, want %v", db.execs[1].args[4], when)
	}
}

func TestPutUnits_OneExecPerUnit(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	units := []content.TranscriptUnit{{ChapterIndex: 1, Ordinal: 1, Text: "a"}, {ChapterIndex: 1, Ordinal: 2, Text: "b"}}
	if err := New(db).PutUnits(context.Background(), "b", units); err != nil {
		t.Fatalf("PutUnits: %v", err)
	}
	if len(db.execs) != 2 {
		t.Errorf("got %d execs, want 2", len(db.execs))
	}
}

func TestExecErrorsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	s := New(&mockDB{execErr: boom})
	ctx := context.Background()

	for name, err := range map[string]error{
		"Migrate":    s.Migrate(ctx),
		"PutBook":    s.PutBook(ctx, content.Book{ID: "b"}),
		"PutChapter": s.PutChapter(ctx, "b", content.Chapter{}),
		"PutSummary": s.PutSummary(ctx, "b", content.ChapterSummary{}),
		"Ping":       s.Ping(ctx),
	} {
		if !errors.Is(err, boom) {
			t.Errorf("%s err = %v, want wrapped %v", name, err, boom)
		}
	}
}

// ---------------------------------------------------------------------------
// Integration tests
// ---------------------------------------------------------------------------

// testDSN returns the test database DSN from the environment, or skips the
// test if NARA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NARA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NARA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func TestConformance(t *testing.T) {
	dsn := testDSN(t)
	contenttest.Run(t, func(t *testing.T) contenttest.ReadWriter {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			t.Fatalf("pool: %v", err)
		}
		defer pool.Close()
		for _, table := range []string{"listener_progress", "chapter_summaries", "transcript_units", "chapters", "books"} {
			if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
				t.Fatalf("drop %s: %v", table, err)
			}
		}
		s, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(s.Close)
		return s
	})
}
