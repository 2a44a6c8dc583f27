// Package playback defines the Adapter contract for the external audiobook
// player that Nara pauses, resumes and seeks around a question.
//
// Implementations must be safe for concurrent use. Pause and Resume must be
// idempotent: pausing a paused player or resuming a playing one is not an
// error.
package playback

import (
	"context"
	"errors"
)

// ErrNoActiveDevice is returned when the player has nothing to control.
var ErrNoActiveDevice = errors.New("playback: no active device")

// State is a snapshot of the player.
type State struct {
	// IsPlaying is true while audio is audible.
	IsPlaying bool

	// PositionSeconds is the current position on the audiobook timeline.
	PositionSeconds float64

	// TrackID identifies the item being played. Adapters that expose a whole
	// audiobook as one item report the book's id.
	TrackID string
}

// Adapter controls an audiobook player.
type Adapter interface {
	// Pause stops audible playback.
	Pause(ctx context.Context) error

	// Resume restarts playback from the current position.
	Resume(ctx context.Context) error

	// Seek moves the playhead to seconds on the audiobook timeline without
	// changing the play/pause state.
	Seek(ctx context.Context, seconds float64) error

	// State returns the current player state.
	State(ctx context.Context) (State, error)
}

// Nop is an Adapter for setups without a controllable player. Every call
// succeeds and State reports a stopped player at position zero.
type Nop struct{}

// Pause implements [Adapter].
func (Nop) Pause(context.Context) error { return nil }

// Resume implements [Adapter].
func (Nop) Resume(context.Context) error { return nil }

// Seek implements [Adapter].
func (Nop) Seek(context.Context, float64) error { return nil }

// State implements [Adapter].
func (Nop) State(context.Context) (State, error) { return State{}, nil }

var _ Adapter = Nop{}
