// Package postgres provides a PostgreSQL-backed [content.Store] and
// [content.Writer].
//
// Usage:
//
//	store, err := postgres.Open(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	units, _ := store.Units(ctx, "eye-of-the-world", 3)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/nara/pkg/content"
)

// Schema is the DDL for the content tables. [Store.Migrate] applies it; it is
// idempotent and safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
    id      TEXT PRIMARY KEY,
    title   TEXT NOT NULL DEFAULT '',
    author  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chapters (
    book_id        TEXT             NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    chapter_index  INTEGER          NOT NULL,
    title          TEXT             NOT NULL DEFAULT '',
    start_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
    PRIMARY KEY (book_id, chapter_index)
);

CREATE TABLE IF NOT EXISTS transcript_units (
    book_id        TEXT             NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    chapter_index  INTEGER          NOT NULL,
    ordinal        INTEGER          NOT NULL,
    start_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    end_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
    text           TEXT             NOT NULL,
    PRIMARY KEY (book_id, chapter_index, ordinal)
);

CREATE TABLE IF NOT EXISTS chapter_summaries (
    book_id        TEXT    NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    chapter_index  INTEGER NOT NULL,
    text           TEXT    NOT NULL,
    PRIMARY KEY (book_id, chapter_index)
);

CREATE TABLE IF NOT EXISTS listener_progress (
    user_id           TEXT             NOT NULL,
    book_id           TEXT             NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    chapter_index     INTEGER          NOT NULL,
    position_seconds  DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at        TIMESTAMPTZ      NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, book_id)
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a PostgreSQL-backed content store. All methods are safe for
// concurrent use.
type Store struct {
	db    DB
	close func()
}

// Compile-time interface checks.
var (
	_ content.Store  = (*Store)(nil)
	_ content.Writer = (*Store)(nil)
)

// New wraps an existing connection or pool. The caller owns db and must call
// [Store.Migrate] before issuing queries against a fresh database.
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Open creates a connection pool for dsn, verifies connectivity and applies
// [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("content postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("content postgres: ping: %w", err)
	}
	s := &Store{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("content postgres: migrate: %w", err)
	}
	return nil
}

// Close releases the pool opened by [Open]. It is a no-op for stores created
// with [New].
func (s *Store) Close() { s.close() }

// ── content.Store ────────────────────────────────────────────────────────────

// Book implements [content.Store].
func (s *Store) Book(ctx context.Context, id string) (content.Book, error) {
	const q = `SELECT id, title, author FROM books WHERE id = $1`
	var b content.Book
	if err := s.db.QueryRow(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author); err != nil {
		return content.Book{}, notFound("book", err)
	}
	return b, nil
}

// Chapter implements [content.Store].
func (s *Store) Chapter(ctx context.Context, bookID string, index int) (content.Chapter, error) {
	const q = `
		SELECT chapter_index, title, start_seconds, end_seconds
		FROM   chapters
		WHERE  book_id = $1 AND chapter_index = $2`
	var c content.Chapter
	if err := s.db.QueryRow(ctx, q, bookID, index).Scan(&c.Index, &c.Title, &c.StartSeconds, &c.EndSeconds); err != nil {
		return content.Chapter{}, notFound("chapter", err)
	}
	return c, nil
}

// Chapters implements [content.Store].
func (s *Store) Chapters(ctx context.Context, bookID string) ([]content.Chapter, error) {
	const q = `
		SELECT chapter_index, title, start_seconds, end_seconds
		FROM   chapters
		WHERE  book_id = $1
		ORDER  BY chapter_index`
	rows, err := s.db.Query(ctx, q, bookID)
	if err != nil {
		return nil, fmt.Errorf("content postgres: chapters: %w", err)
	}
	defer rows.Close()

	var out []content.Chapter
	for rows.Next() {
		var c content.Chapter
		if err := rows.Scan(&c.Index, &c.Title, &c.StartSeconds, &c.EndSeconds); err != nil {
			return nil, fmt.Errorf("content postgres: scan chapter: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content postgres: chapters: %w", err)
	}
	return out, nil
}

// Units implements [content.Store].
func (s *Store) Units(ctx context.Context, bookID string, chapterIndex int) ([]content.TranscriptUnit, error) {
	const q = `
		SELECT chapter_index, ordinal, start_seconds, end_seconds, text
		FROM   transcript_units
		WHERE  book_id = $1 AND chapter_index = $2
		ORDER  BY ordinal`
	rows, err := s.db.Query(ctx, q, bookID, chapterIndex)
	if err != nil {
		return nil, fmt.Errorf("content postgres: units: %w", err)
	}
	defer rows.Close()

	var out []content.TranscriptUnit
	for rows.Next() {
		var u content.TranscriptUnit
		if err := rows.Scan(&u.ChapterIndex, &u.Ordinal, &u.StartSeconds, &u.EndSeconds, &u.Text); err != nil {
			return nil, fmt.Errorf("content postgres: scan unit: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content postgres: units: %w", err)
	}
	return out, nil
}

// Summaries implements [content.Store].
func (s *Store) Summaries(ctx context.Context, bookID string, beforeChapter int) ([]content.ChapterSummary, error) {
	const q = `
		SELECT chapter_index, text
		FROM   chapter_summaries
		WHERE  book_id = $1 AND chapter_index < $2
		ORDER  BY chapter_index`
	rows, err := s.db.Query(ctx, q, bookID, beforeChapter)
	if err != nil {
		return nil, fmt.Errorf("content postgres: summaries: %w", err)
	}
	defer rows.Close()

	var out []content.ChapterSummary
	for rows.Next() {
		var cs content.ChapterSummary
		if err := rows.Scan(&cs.ChapterIndex, &cs.Text); err != nil {
			return nil, fmt.Errorf("content postgres: scan summary: %w", err)
		}
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content postgres: summaries: %w", err)
	}
	return out, nil
}

// Progress implements [content.Store].
func (s *Store) Progress(ctx context.Context, userID, bookID string) (content.Progress, error) {
	const q = `
		SELECT user_id, book_id, chapter_index, position_seconds, updated_at
		FROM   listener_progress
		WHERE  user_id = $1 AND book_id = $2`
	var p content.Progress
	err := s.db.QueryRow(ctx, q, userID, bookID).Scan(&p.UserID, &p.AudiobookID, &p.ChapterIndex, &p.PositionSeconds, &p.UpdatedAt)
	if err != nil {
		return content.Progress{}, notFound("progress", err)
	}
	return p, nil
}

// Ping implements [content.Store].
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("content postgres: ping: %w", err)
	}
	return nil
}

// ── content.Writer ───────────────────────────────────────────────────────────

// PutBook implements [content.Writer].
func (s *Store) PutBook(ctx context.Context, b content.Book) error {
	const q = `
		INSERT INTO books (id, title, author) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, author = EXCLUDED.author`
	if _, err := s.db.Exec(ctx, q, b.ID, b.Title, b.Author); err != nil {
		return fmt.Errorf("content postgres: put book: %w", err)
	}
	return nil
}

// PutChapter implements [content.Writer].
func (s *Store) PutChapter(ctx context.Context, bookID string, c content.Chapter) error {
	const q = `
		INSERT INTO chapters (book_id, chapter_index, title, start_seconds, end_seconds)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (book_id, chapter_index) DO UPDATE
		SET title = EXCLUDED.title, start_seconds = EXCLUDED.start_seconds, end_seconds = EXCLUDED.end_seconds`
	if _, err := s.db.Exec(ctx, q, bookID, c.Index, c.Title, c.StartSeconds, c.EndSeconds); err != nil {
		return fmt.Errorf("content postgres: put chapter: %w", err)
	}
	return nil
}

// PutUnits implements [content.Writer].
func (s *Store) PutUnits(ctx context.Context, bookID string, units []content.TranscriptUnit) error {
	const q = `
		INSERT INTO transcript_units (book_id, chapter_index, ordinal, start_seconds, end_seconds, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (book_id, chapter_index, ordinal) DO UPDATE
		SET start_seconds = EXCLUDED.start_seconds, end_seconds = EXCLUDED.end_seconds, text = EXCLUDED.text`
	for _, u := range units {
		if _, err := s.db.Exec(ctx, q, bookID, u.ChapterIndex, u.Ordinal, u.StartSeconds, u.EndSeconds, u.Text); err != nil {
			return fmt.Errorf("content postgres: put unit %d/%d: %w", u.ChapterIndex, u.Ordinal, err)
		}
	}
	return nil
}

// PutSummary implements [content.Writer].
func (s *Store) PutSummary(ctx context.Context, bookID string, cs content.ChapterSummary) error {
	const q = `
		INSERT INTO chapter_summaries (book_id, chapter_index, text) VALUES ($1, $2, $3)
		ON CONFLICT (book_id, chapter_index) DO UPDATE SET text = EXCLUDED.text`
	if _, err := s.db.Exec(ctx, q, bookID, cs.ChapterIndex, cs.Text); err != nil {
		return fmt.Errorf("content postgres: put summary: %w", err)
	}
	return nil
}

// SaveProgress implements [content.Writer].
func (s *Store) SaveProgress(ctx context.Context, p content.Progress) error {
	const q = `
		INSERT INTO listener_progress (user_id, book_id, chapter_index, position_seconds, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET chapter_index = EXCLUDED.chapter_index,
		    position_seconds = EXCLUDED.position_seconds,
		    updated_at = EXCLUDED.updated_at`
	var updated any
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt
	}
	if _, err := s.db.Exec(ctx, q, p.UserID, p.AudiobookID, p.ChapterIndex, p.PositionSeconds, updated); err != nil {
		return fmt.Errorf("content postgres: save progress: %w", err)
	}
	return nil
}

// notFound maps pgx.ErrNoRows to content.ErrNotFound.
func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("content postgres: %s: %w", what, content.ErrNotFound)
	}
	return fmt.Errorf("content postgres: %s: %w", what, err)
}
