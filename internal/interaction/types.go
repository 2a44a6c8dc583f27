package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/nara/internal/answer"
)

// ErrBargeIn is the cancellation cause of an interaction pre-empted by new
// listener speech.
var ErrBargeIn = errors.New("interaction: barge-in")

// State is the orchestrator's position in the exchange.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ListenMode selects what opens the microphone.
type ListenMode string

const (
	// ListenWake requires the wake phrase.
	ListenWake ListenMode = "wake"

	// ListenContinuous treats any detected speech as the start of a question.
	ListenContinuous ListenMode = "continuous"
)

// SignalKind classifies a [Signal].
type SignalKind int

const (
	// SignalWake reports a wake phrase detection.
	SignalWake SignalKind = iota + 1

	// SignalSpeech reports that voice activity started.
	SignalSpeech

	// SignalUtterance carries a final listener question in Text.
	SignalUtterance

	// SignalTimeout reports that the recognizer gave up waiting for a
	// question.
	SignalTimeout
)

// String returns the signal kind name.
func (k SignalKind) String() string {
	switch k {
	case SignalWake:
		return "wake"
	case SignalSpeech:
		return "speech"
	case SignalUtterance:
		return "utterance"
	case SignalTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("SignalKind(%d)", int(k))
	}
}

// Signal is one input to the state machine.
type Signal struct {
	Kind SignalKind
	Text string
}

// Outcome is how an interaction ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
)

// Classify maps an interaction error to its outcome: nil is completed, a
// barge-in or shutdown is aborted, a deadline is timed out and anything else
// failed.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrBargeIn), errors.Is(err, context.Canceled):
		return OutcomeAborted
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}

// Interaction is one spoken exchange. At most one is active at a time and
// the active one owns pause/resume of the player.
type Interaction struct {
	ID        string
	StartedAt time.Time
	Question  string

	cancel context.CancelCauseFunc
}

// Report is emitted on [Orchestrator.Outcomes] when an interaction ends.
type Report struct {
	InteractionID string
	Question      string
	Outcome       Outcome

	// Result is set for completed interactions.
	Result *answer.Result

	// Fallback is true when the generic response was spoken because no
	// transcript was available.
	Fallback bool

	// Err is the cause for every outcome except completed.
	Err error

	StartedAt time.Time
	Duration  time.Duration
}
