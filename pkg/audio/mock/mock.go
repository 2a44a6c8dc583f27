// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on what was played, and expose exported fields that control behaviour.
//
// Typical usage:
//
//	src := mock.NewSource(audio.Format{SampleRate: 16000, Channels: 1}, 8)
//	src.Push(frame)
//	sink := &mock.Sink{}
//	_ = sink.Play(ctx, pcm)
//	chunks := sink.Played()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/nara/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] backed by a buffered channel.
type Source struct {
	format audio.Format
	ch     chan audio.AudioFrame
	once   sync.Once
}

// NewSource returns a Source with the given format and channel buffer.
func NewSource(format audio.Format, buffer int) *Source {
	return &Source{format: format, ch: make(chan audio.AudioFrame, buffer)}
}

// Push delivers frame to consumers of Frames. It blocks when the buffer is full.
func (s *Source) Push(frame audio.AudioFrame) { s.ch <- frame }

// Close closes the frame channel. Safe to call more than once.
func (s *Source) Close() { s.once.Do(func() { close(s.ch) }) }

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan audio.AudioFrame { return s.ch }

// Format implements [audio.Source].
func (s *Source) Format() audio.Format { return s.format }

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink]. Every chunk received by Play is recorded.
type Sink struct {
	mu sync.Mutex

	// PlayErr is returned by Play after the stream has been consumed.
	PlayErr error

	// Started, if non-nil, receives a value each time Play begins.
	Started chan struct{}

	chunks [][]byte
	calls  int
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, pcm <-chan []byte) error {
	s.mu.Lock()
	s.calls++
	started := s.Started
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			go audio.Drain(pcm)
			return ctx.Err()
		case chunk, ok := <-pcm:
			if !ok {
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.PlayErr
			}
			s.mu.Lock()
			s.chunks = append(s.chunks, append([]byte(nil), chunk...))
			s.mu.Unlock()
		}
	}
}

// Played returns a copy of every chunk played so far.
func (s *Sink) Played() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Calls returns how many times Play was invoked.
func (s *Sink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
