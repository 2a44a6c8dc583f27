// Package mock provides scripted vad.Engine and vad.SessionHandle doubles.
//
// A Session replays Script one event per frame. [Utterance] builds the usual
// script for a single spoken phrase:
//
//	eng := &mock.Engine{Session: &mock.Session{Script: mock.Utterance(3)}}
package mock

import (
	"sync"

	"github.com/MrWong99/nara/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Utterance returns a script of speech lasting n frames: a started edge, n-1
// frames in speech and an ended edge.
func Utterance(n int) []vad.Event {
	if n < 1 {
		n = 1
	}
	script := make([]vad.Event, 0, n+1)
	script = append(script, vad.Event{Type: vad.EventSpeechStarted, Level: 0.3, InSpeech: true})
	for range n - 1 {
		script = append(script, vad.Event{Level: 0.3, InSpeech: true})
	}
	return append(script, vad.Event{Type: vad.EventSpeechEnded, Level: 0.01})
}

// Engine hands out Session (or a fresh empty one) and records each Config.
type Engine struct {
	Session       vad.SessionHandle
	NewSessionErr error

	mu      sync.Mutex
	configs []vad.Config
}

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	switch {
	case e.NewSessionErr != nil:
		return nil, e.NewSessionErr
	case e.Session != nil:
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns the config of every NewSession call so far.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session replays Script. After the script runs out every frame yields a
// silent zero event. After Close, ProcessFrame fails with vad.ErrClosed.
type Session struct {
	Script []vad.Event

	// Err, if set, is returned by every ProcessFrame call.
	Err error

	mu     sync.Mutex
	frames int
	resets int
	closed bool
}

func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, vad.ErrClosed
	}
	s.frames++
	if s.Err != nil {
		return vad.Event{}, s.Err
	}
	if len(s.Script) == 0 {
		return vad.Event{}, nil
	}
	ev := s.Script[0]
	s.Script = s.Script[1:]
	return ev, nil
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FrameCount is the number of frames processed before Close.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Resets is the number of Reset calls.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
