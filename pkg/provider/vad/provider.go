// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine classifies short PCM frames as speech or silence and surfaces
// edge events (speech started, speech ended) through a stateful, per-stream
// session. Each session owns its own detection state (classification window,
// noise floor, hysteresis flags) so that multiple audio streams can be processed
// independently.
//
// VAD is synchronous: ProcessFrame returns the detection result for the
// frame it was given.
//
// Implementations must be safe for concurrent use across different sessions.
package vad

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by ProcessFrame after the session has been closed.
var ErrClosed = errors.New("vad: session closed")

// EventType enumerates VAD edge events.
type EventType int

const (
	// EventNone means the frame did not change the speech state.
	EventNone EventType = iota

	// EventSpeechStarted is raised once when speech begins.
	EventSpeechStarted

	// EventSpeechEnded is raised once when a speech segment ends.
	EventSpeechEnded
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechEnded:
		return "speech_ended"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single frame.
type Event struct {
	// Type is the edge event raised by this frame, if any.
	Type EventType

	// Level is the frame's normalised RMS energy in [0.0, 1.0].
	Level float64

	// InSpeech reports the session's speech state after this frame.
	InSpeech bool
}

// Config holds the parameters for a VAD session. Levels are normalised RMS
// energy in [0.0, 1.0]; see audio.Level.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames passed
	// to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each mono 16-bit frame in milliseconds.
	// ProcessFrame returns an error if a frame does not match this size.
	FrameSizeMs int

	// StaticThreshold is the minimum level a frame must exceed to count as
	// speech, regardless of how quiet the room is.
	StaticThreshold float64

	// NoiseMultiplier scales the background noise estimate into the adaptive
	// threshold. Typical: 2.5.
	NoiseMultiplier float64

	// CalibrationFrames is the number of initial frames used to seed the noise
	// estimate. No events are raised during calibration.
	CalibrationFrames int

	// WindowFrames is the size of the recent-classification window.
	WindowFrames int

	// SpeechFrames is how many speech frames within the window raise
	// EventSpeechStarted. Must be ≤ WindowFrames.
	SpeechFrames int

	// Debounce is the minimum time between an EventSpeechEnded and the next
	// EventSpeechStarted, measured in audio time.
	Debounce time.Duration
}

// DefaultConfig returns the tuning used when nothing else is configured:
// 16 kHz, 20 ms frames, one second of calibration, 6-of-10 hysteresis.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameSizeMs:       20,
		StaticThreshold:   0.02,
		NoiseMultiplier:   2.5,
		CalibrationFrames: 50,
		WindowFrames:      10,
		SpeechFrames:      6,
		Debounce:          500 * time.Millisecond,
	}
}

// FrameBytes returns the expected size in bytes of one mono 16-bit frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSizeMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs))
	}
	if c.StaticThreshold < 0 || c.StaticThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad: static threshold must be in [0, 1], got %v", c.StaticThreshold))
	}
	if c.NoiseMultiplier < 1 {
		errs = append(errs, fmt.Errorf("vad: noise multiplier must be ≥ 1, got %v", c.NoiseMultiplier))
	}
	if c.CalibrationFrames < 0 {
		errs = append(errs, fmt.Errorf("vad: calibration frames must not be negative, got %d", c.CalibrationFrames))
	}
	if c.WindowFrames <= 0 {
		errs = append(errs, fmt.Errorf("vad: window frames must be positive, got %d", c.WindowFrames))
	}
	if c.SpeechFrames <= 0 || c.SpeechFrames > c.WindowFrames {
		errs = append(errs, fmt.Errorf("vad: speech frames must be in [1, %d], got %d", c.WindowFrames, c.SpeechFrames))
	}
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("vad: debounce must not be negative, got %v", c.Debounce))
	}
	return errors.Join(errs...)
}

// SessionHandle represents an active VAD session for a single audio stream. It
// is an interface so that test code can supply mock implementations without a
// live engine.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of raw little-endian mono PCM and
	// returns the detection result. It must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears all detection state, including the noise estimate, so the
	// next frames recalibrate. Use it when the capture stream restarts.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// NewSession creates a new session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
