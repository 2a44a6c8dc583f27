// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// presents a uniform streaming interface. The primary entry point is
// SynthesizeStream, which accepts a channel of text fragments (sentences of the
// cleaned answer) and returns a channel of raw PCM audio bytes as they become
// available, so playback can begin before the whole answer is synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/nara/pkg/types"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits raw 16-bit mono PCM audio as it is synthesised.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. Cancelling ctx must abort
	// the in-flight request, not merely stop delivering audio. The caller must
	// drain the audio channel to avoid blocking the provider's goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early; callers check ctx.Err()
	// to tell cancellation apart from provider failures.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. Used
	// at startup to verify that the configured voice exists.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)
}
