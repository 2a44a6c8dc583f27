// Package audio defines the capture and playback contracts for Nara's voice
// path together with small PCM helpers (level metering, format conversion).
//
// The two primary abstractions are:
//
//   - [Source]: a continuous stream of microphone [AudioFrame] values.
//   - [Sink]: plays a stream of synthesised answer audio to completion.
//
// Concrete implementations live in sub-packages (e.g., audio/wsbridge for a
// browser connected over a websocket). The interfaces are intentionally narrow
// so the orchestrator stays decoupled from transport details.
package audio

import "context"

// Source delivers captured microphone audio.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Frames returns the read-only channel of captured frames. The channel is
	// closed when the source terminates (e.g., the client disconnects).
	// Repeated calls return the same channel.
	Frames() <-chan AudioFrame

	// Format reports the format of frames delivered by Frames.
	Format() Format
}

// Sink plays synthesised speech.
//
// Implementations must be safe for concurrent use, but callers play at most
// one stream at a time.
type Sink interface {
	// Play consumes pcm until it is closed and returns once the audio has been
	// handed to the output device. When ctx is cancelled Play stops writing
	// immediately, drains pcm in the background and returns ctx.Err().
	Play(ctx context.Context, pcm <-chan []byte) error
}
