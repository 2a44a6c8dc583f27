// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio chunks and emits
// two streams of Transcript values: low-latency partials used for early wake
// detection, and authoritative finals that carry complete listener utterances.
//
// Every Transcript is tagged with a types.Role. Sessions fed from the
// microphone path tag their output as types.RoleListener; the recognizer drops
// anything tagged types.RoleSystem.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/nara/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the capture default.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string uses the provider default.
	Language string

	// Keywords is a list of vocabulary hints, typically the wake phrase words
	// and the audiobook's proper nouns.
	Keywords []types.KeywordBoost

	// Endpointing is the trailing silence after which the provider should
	// finalise an utterance. Zero uses the provider default.
	Endpointing time.Duration

	// Role is stamped on every Transcript the session emits. Empty means
	// types.RoleListener.
	Role types.Role
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without a live provider.
//
// Callers must call Close when the session is no longer needed.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio matching the StreamConfig.
	// Calling SendAudio after Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim transcripts. The channel
	// is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel of finalised utterances. The channel
	// is closed when the session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session, flushes pending audio and releases all
	// resources. After Close returns, Partials and Finals are closed. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
