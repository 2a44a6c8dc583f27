// Package mock provides a test double for the playback.Adapter interface.
//
// Adapter tracks a simulated play/pause state and position, and records the
// order of every call so tests can assert pause-before-listen and
// resume-after-answer sequences.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nara/pkg/playback"
)

// Adapter is a mock implementation of playback.Adapter.
type Adapter struct {
	mu sync.Mutex

	// Playing is the simulated play state. Pause clears it, Resume sets it.
	Playing bool

	// Position is the simulated position in seconds. Seek updates it.
	Position float64

	// TrackID is reported by State.
	TrackID string

	// PauseErr, ResumeErr, SeekErr and StateErr, if non-nil, are returned by
	// the corresponding method without changing state.
	PauseErr  error
	ResumeErr error
	SeekErr   error
	StateErr  error

	// Calls records the method names in call order: "pause", "resume", "seek",
	// "state".
	Calls []string

	// Seeks records every position passed to Seek.
	Seeks []float64
}

// Pause implements playback.Adapter.
func (a *Adapter) Pause(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, "pause")
	if a.PauseErr != nil {
		return a.PauseErr
	}
	a.Playing = false
	return nil
}

// Resume implements playback.Adapter.
func (a *Adapter) Resume(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, "resume")
	if a.ResumeErr != nil {
		return a.ResumeErr
	}
	a.Playing = true
	return nil
}

// Seek implements playback.Adapter.
func (a *Adapter) Seek(_ context.Context, seconds float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, "seek")
	a.Seeks = append(a.Seeks, seconds)
	if a.SeekErr != nil {
		return a.SeekErr
	}
	a.Position = seconds
	return nil
}

// State implements playback.Adapter.
func (a *Adapter) State(context.Context) (playback.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, "state")
	if a.StateErr != nil {
		return playback.State{}, a.StateErr
	}
	return playback.State{IsPlaying: a.Playing, PositionSeconds: a.Position, TrackID: a.TrackID}, nil
}

// IsPlaying returns the simulated play state. Thread-safe.
func (a *Adapter) IsPlaying() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Playing
}

// SetPosition moves the simulated playhead without recording a call.
func (a *Adapter) SetPosition(seconds float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Position = seconds
}

// CallLog returns a copy of Calls with "state" polls removed. Thread-safe.
func (a *Adapter) CallLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Calls))
	for _, c := range a.Calls {
		if c != "state" {
			out = append(out, c)
		}
	}
	return out
}

var _ playback.Adapter = (*Adapter)(nil)
