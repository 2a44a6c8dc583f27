// Package events publishes interaction outcomes to an event bus so that
// companion apps and analytics can follow what the listener asked.
//
// The [NATS] publisher sends one JSON message per finished interaction on
// the subject "<prefix>.interaction.<outcome>", for example
// "nara.interaction.completed". [Nop] is used when no bus is configured.
package events

import (
	"context"
	"time"

	"github.com/MrWong99/nara/internal/answer"
	"github.com/MrWong99/nara/internal/interaction"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "nara"

// Event is the wire form of a finished interaction.
type Event struct {
	InteractionID string    `json:"interaction_id"`
	AudiobookID   string    `json:"audiobook_id,omitempty"`
	Question      string    `json:"question"`
	Outcome       string    `json:"outcome"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`

	// Set for completed interactions.
	Answer         string            `json:"answer,omitempty"`
	Citations      []answer.Citation `json:"citations,omitempty"`
	Mode           string            `json:"mode,omitempty"`
	AllowedChapter *int              `json:"allowed_chapter,omitempty"`
	Fallback       bool              `json:"fallback,omitempty"`

	// Error is the failure or abort reason.
	Error string `json:"error,omitempty"`
}

// FromReport converts an interaction report to an event.
func FromReport(bookID string, r interaction.Report) Event {
	ev := Event{
		InteractionID: r.InteractionID,
		AudiobookID:   bookID,
		Question:      r.Question,
		Outcome:       string(r.Outcome),
		StartedAt:     r.StartedAt.UTC(),
		DurationMS:    r.Duration.Milliseconds(),
		Fallback:      r.Fallback,
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	if res := r.Result; res != nil {
		ev.Answer = res.Markdown
		ev.Citations = res.Citations
		ev.Mode = string(res.Mode)
		allowed := res.AllowedChapter
		ev.AllowedChapter = &allowed
	}
	return ev
}

// Publisher sends interaction events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements [Publisher].
func (Nop) Publish(context.Context, Event) error { return nil }

var _ Publisher = Nop{}
