// Package sqlite provides a SQLite-backed [content.Store] and [content.Writer]
// using the pure-Go modernc.org/sqlite driver. It suits single-listener
// deployments where running PostgreSQL is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/nara/pkg/content"
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
    id      TEXT PRIMARY KEY,
    title   TEXT NOT NULL DEFAULT '',
    author  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS chapters (
    book_id        TEXT    NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    chapter_index  INTEGER NOT NULL,
    title          TEXT    NOT NULL DEFAULT '',
    start_seconds  REAL    NOT NULL DEFAULT 0,
    end_seconds    REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (book_id, chapter_index)
);
CREATE TABLE IF NOT EXISTS transcript_units (
    book_id        TEXT    NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    chapter_index  INTEGER NOT NULL,
    ordinal        INTEGER NOT NULL,
    start_seconds  REAL    NOT NULL DEFAULT 0,
    end_seconds    REAL    NOT NULL DEFAULT 0,
    text           TEXT    NOT NULL,
    PRIMARY KEY (book_id, chapter_index, ordinal)
);
CREATE TABLE IF NOT EXISTS chapter_summaries (
    book_id        TEXT    NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    chapter_index  INTEGER NOT NULL,
    text           TEXT    NOT NULL,
    PRIMARY KEY (book_id, chapter_index)
);
CREATE TABLE IF NOT EXISTS listener_progress (
    user_id           TEXT    NOT NULL,
    book_id           TEXT    NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    chapter_index     INTEGER NOT NULL,
    position_seconds  REAL    NOT NULL DEFAULT 0,
    updated_unix_ns   INTEGER NOT NULL,
    PRIMARY KEY (user_id, book_id)
);
`

// Store is a SQLite-backed content store.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Compile-time interface checks.
var (
	_ content.Store  = (*Store)(nil)
	_ content.Writer = (*Store)(nil)
)

// Open opens (creating if needed) the database file at path and applies the
// schema. The parent directory is created when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("content sqlite: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("content sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("content sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("content sqlite: init schema: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── content.Store ────────────────────────────────────────────────────────────

// Book implements [content.Store].
func (s *Store) Book(ctx context.Context, id string) (content.Book, error) {
	var b content.Book
	err := s.db.QueryRowContext(ctx, `SELECT id, title, author FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author)
	if err != nil {
		return content.Book{}, notFound("book", err)
	}
	return b, nil
}

// Chapter implements [content.Store].
func (s *Store) Chapter(ctx context.Context, bookID string, index int) (content.Chapter, error) {
	var c content.Chapter
	err := s.db.QueryRowContext(ctx,
		`SELECT chapter_index, title, start_seconds, end_seconds FROM chapters WHERE book_id = ? AND chapter_index = ?`,
		bookID, index).Scan(&c.Index, &c.Title, &c.StartSeconds, &c.EndSeconds)
	if err != nil {
		return content.Chapter{}, notFound("chapter", err)
	}
	return c, nil
}

// Chapters implements [content.Store].
func (s *Store) Chapters(ctx context.Context, bookID string) ([]content.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_index, title, start_seconds, end_seconds FROM chapters WHERE book_id = ? ORDER BY chapter_index`,
		bookID)
	if err != nil {
		return nil, fmt.Errorf("content sqlite: chapters: %w", err)
	}
	defer rows.Close()

	var out []content.Chapter
	for rows.Next() {
		var c content.Chapter
		if err := rows.Scan(&c.Index, &c.Title, &c.StartSeconds, &c.EndSeconds); err != nil {
			return nil, fmt.Errorf("content sqlite: scan chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Units implements [content.Store].
func (s *Store) Units(ctx context.Context, bookID string, chapterIndex int) ([]content.TranscriptUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chapter_index, ordinal, start_seconds, end_seconds, text
FROM transcript_units
WHERE book_id = ? AND chapter_index = ?
ORDER BY ordinal`, bookID, chapterIndex)
	if err != nil {
		return nil, fmt.Errorf("content sqlite: units: %w", err)
	}
	defer rows.Close()

	var out []content.TranscriptUnit
	for rows.Next() {
		var u content.TranscriptUnit
		if err := rows.Scan(&u.ChapterIndex, &u.Ordinal, &u.StartSeconds, &u.EndSeconds, &u.Text); err != nil {
			return nil, fmt.Errorf("content sqlite: scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Summaries implements [content.Store].
func (s *Store) Summaries(ctx context.Context, bookID string, beforeChapter int) ([]content.ChapterSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chapter_index, text FROM chapter_summaries WHERE book_id = ? AND chapter_index < ? ORDER BY chapter_index`,
		bookID, beforeChapter)
	if err != nil {
		return nil, fmt.Errorf("content sqlite: summaries: %w", err)
	}
	defer rows.Close()

	var out []content.ChapterSummary
	for rows.Next() {
		var cs content.ChapterSummary
		if err := rows.Scan(&cs.ChapterIndex, &cs.Text); err != nil {
			return nil, fmt.Errorf("content sqlite: scan summary: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Progress implements [content.Store].
func (s *Store) Progress(ctx context.Context, userID, bookID string) (content.Progress, error) {
	var (
		p  content.Progress
		ns int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT user_id, book_id, chapter_index, position_seconds, updated_unix_ns
FROM listener_progress
WHERE user_id = ? AND book_id = ?`, userID, bookID).
		Scan(&p.UserID, &p.AudiobookID, &p.ChapterIndex, &p.PositionSeconds, &ns)
	if err != nil {
		return content.Progress{}, notFound("progress", err)
	}
	p.UpdatedAt = time.Unix(0, ns).UTC()
	return p, nil
}

// Ping implements [content.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── content.Writer ───────────────────────────────────────────────────────────

// PutBook implements [content.Writer].
func (s *Store) PutBook(ctx context.Context, b content.Book) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO books (id, title, author) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET title = excluded.title, author = excluded.author`,
		b.ID, b.Title, b.Author)
	if err != nil {
		return fmt.Errorf("content sqlite: put book: %w", err)
	}
	return nil
}

// PutChapter implements [content.Writer].
func (s *Store) PutChapter(ctx context.Context, bookID string, c content.Chapter) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chapters (book_id, chapter_index, title, start_seconds, end_seconds) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (book_id, chapter_index) DO UPDATE
SET title = excluded.title, start_seconds = excluded.start_seconds, end_seconds = excluded.end_seconds`,
		bookID, c.Index, c.Title, c.StartSeconds, c.EndSeconds)
	if err != nil {
		return fmt.Errorf("content sqlite: put chapter: %w", err)
	}
	return nil
}

// PutUnits implements [content.Writer]. All units are written in one
// transaction.
func (s *Store) PutUnits(ctx context.Context, bookID string, units []content.TranscriptUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("content sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO transcript_units (book_id, chapter_index, ordinal, start_seconds, end_seconds, text) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (book_id, chapter_index, ordinal) DO UPDATE
SET start_seconds = excluded.start_seconds, end_seconds = excluded.end_seconds, text = excluded.text`)
	if err != nil {
		return fmt.Errorf("content sqlite: prepare unit insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range units {
		if _, err := stmt.ExecContext(ctx, bookID, u.ChapterIndex, u.Ordinal, u.StartSeconds, u.EndSeconds, u.Text); err != nil {
			return fmt.Errorf("content sqlite: put unit %d/%d: %w", u.ChapterIndex, u.Ordinal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("content sqlite: commit units: %w", err)
	}
	return nil
}

// PutSummary implements [content.Writer].
func (s *Store) PutSummary(ctx context.Context, bookID string, cs content.ChapterSummary) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chapter_summaries (book_id, chapter_index, text) VALUES (?, ?, ?)
ON CONFLICT (book_id, chapter_index) DO UPDATE SET text = excluded.text`,
		bookID, cs.ChapterIndex, cs.Text)
	if err != nil {
		return fmt.Errorf("content sqlite: put summary: %w", err)
	}
	return nil
}

// SaveProgress implements [content.Writer]. A zero UpdatedAt is stamped with
// the current time.
func (s *Store) SaveProgress(ctx context.Context, p content.Progress) error {
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO listener_progress (user_id, book_id, chapter_index, position_seconds, updated_unix_ns) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, book_id) DO UPDATE
SET chapter_index = excluded.chapter_index, position_seconds = excluded.position_seconds, updated_unix_ns = excluded.updated_unix_ns`,
		p.UserID, p.AudiobookID, p.ChapterIndex, p.PositionSeconds, updated.UnixNano())
	if err != nil {
		return fmt.Errorf("content sqlite: save progress: %w", err)
	}
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("content sqlite: %s: %w", what, content.ErrNotFound)
	}
	return fmt.Errorf("content sqlite: %s: %w", what, err)
}
