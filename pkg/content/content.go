// Package content defines the audiobook content model and the Store contract
// the answering pipeline reads from.
//
// An audiobook is a sequence of chapters laid out on a single timeline. Each
// chapter owns an ordered list of transcript units (paragraphs), optionally
// timed against the audio. The store also holds short per-chapter summaries
// and each listener's furthest legitimate progress.
//
// The Store interface is read-only: nothing in the voice path ever writes
// content. Writer exists for ingestion tooling and tests.
//
// Implementations:
//   - [github.com/MrWong99/nara/pkg/content/postgres] for server deployments.
//   - [github.com/MrWong99/nara/pkg/content/sqlite] for single-listener setups.
//   - [github.com/MrWong99/nara/pkg/content/memstore] for tests and demos.
package content

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested book, chapter or progress record
// does not exist.
var ErrNotFound = errors.New("content: not found")

// Book is the audiobook's catalogue metadata.
type Book struct {
	ID     string
	Title  string
	Author string
}

// Chapter is one chapter's span on the audiobook timeline.
type Chapter struct {
	// Index is the zero-based chapter position in the book.
	Index int

	// Title is the chapter heading; may be empty.
	Title string

	// StartSeconds and EndSeconds bound the chapter on the audiobook timeline.
	StartSeconds float64
	EndSeconds   float64
}

// Contains reports whether seconds lies within the chapter, bounds inclusive.
func (c Chapter) Contains(seconds float64) bool {
	return seconds >= c.StartSeconds && seconds <= c.EndSeconds
}

// TranscriptUnit is one paragraph of a chapter's transcript.
type TranscriptUnit struct {
	ChapterIndex int

	// Ordinal is the paragraph id, unique within the chapter. It is the N in a
	// [pN] citation.
	Ordinal int

	// StartSeconds and EndSeconds locate the paragraph on the audiobook
	// timeline. Both are zero for untimed units.
	StartSeconds float64
	EndSeconds   float64

	Text string
}

// Timed reports whether the unit carries a usable audio position.
func (u TranscriptUnit) Timed() bool { return u.EndSeconds > u.StartSeconds }

// ChapterSummary is a short recap of a single chapter.
type ChapterSummary struct {
	ChapterIndex int
	Text         string
}

// Progress is a listener's furthest legitimate position in a book.
type Progress struct {
	UserID          string
	AudiobookID     string
	ChapterIndex    int
	PositionSeconds float64
	UpdatedAt       time.Time
}

// PlaybackContext is a snapshot of where the listener is right now.
// PlaybackChapter follows the player; ProgressChapter is the furthest chapter
// the listener has legitimately reached. The two differ when the listener
// skips ahead or rewinds.
type PlaybackContext struct {
	AudiobookID     string
	PositionSeconds float64
	PlaybackChapter int
	ProgressChapter int
}

// Store is the read-only content contract.
//
// Implementations must be safe for concurrent use and return [ErrNotFound]
// (possibly wrapped) for missing records.
type Store interface {
	// Book returns the catalogue entry for id.
	Book(ctx context.Context, id string) (Book, error)

	// Chapter returns a single chapter of a book.
	Chapter(ctx context.Context, bookID string, index int) (Chapter, error)

	// Chapters returns every chapter of a book ordered by Index.
	Chapters(ctx context.Context, bookID string) ([]Chapter, error)

	// Units returns the transcript units of one chapter ordered by Ordinal.
	// A chapter without a transcript yields an empty slice and no error.
	Units(ctx context.Context, bookID string, chapterIndex int) ([]TranscriptUnit, error)

	// Summaries returns the summaries of every chapter with an index strictly
	// below beforeChapter, ordered by chapter.
	Summaries(ctx context.Context, bookID string, beforeChapter int) ([]ChapterSummary, error)

	// Progress returns the listener's stored progress for a book.
	Progress(ctx context.Context, userID, bookID string) (Progress, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

// Writer ingests content. Not used on the voice path.
type Writer interface {
	PutBook(ctx context.Context, b Book) error
	PutChapter(ctx context.Context, bookID string, c Chapter) error
	PutUnits(ctx context.Context, bookID string, units []TranscriptUnit) error
	PutSummary(ctx context.Context, bookID string, s ChapterSummary) error
	SaveProgress(ctx context.Context, p Progress) error
}

// ChapterAt returns the index of the last chapter starting at or before
// seconds. Positions before the first chapter map to the first chapter. It
// returns -1 when chapters is empty. chapters must be ordered by StartSeconds.
func ChapterAt(chapters []Chapter, seconds float64) int {
	if len(chapters) == 0 {
		return -1
	}
	idx := chapters[0].Index
	for _, c := range chapters {
		if seconds < c.StartSeconds {
			break
		}
		idx = c.Index
	}
	return idx
}
