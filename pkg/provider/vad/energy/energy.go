// Package energy implements [vad.Engine] with an adaptive-threshold energy
// detector.
//
// The detector seeds a background noise estimate from the first frames of a
// session, then classifies each frame as speech when its RMS level exceeds
// max(StaticThreshold, noise × NoiseMultiplier). Edge events use asymmetric
// hysteresis over a sliding window: speech starts once SpeechFrames of the last
// WindowFrames frames are speech, and ends only when the whole window is silent.
// The noise estimate keeps tracking the room with a slow exponential moving
// average fed exclusively by non-speech frames, so the listener's own voice
// never raises the floor.
package energy

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/nara/pkg/audio"
	"github.com/MrWong99/nara/pkg/provider/vad"
)

// noiseDecay is the weight of the previous noise estimate in the EMA update.
const noiseDecay = 0.99

// Engine creates energy-based VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:        cfg,
		frameBytes: cfg.FrameBytes(),
		frameDur:   time.Duration(cfg.FrameSizeMs) * time.Millisecond,
		window:     make([]bool, cfg.WindowFrames),
	}
	s.reset()
	return s, nil
}

// Session is the per-stream detector state. It is safe for concurrent use,
// although frames are expected to arrive from a single capture goroutine.
type Session struct {
	cfg        vad.Config
	frameBytes int
	frameDur   time.Duration

	mu          sync.Mutex
	closed      bool
	calibrated  int
	noise       float64
	window      []bool
	head        int
	filled      int
	speechCount int
	inSpeech    bool
	elapsed     time.Duration
	lastEnded   time.Duration
	everEnded   bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, vad.ErrClosed
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	level := audio.Level(frame)
	s.elapsed += s.frameDur
	ev := vad.Event{Level: level, InSpeech: s.inSpeech}

	if s.calibrated < s.cfg.CalibrationFrames {
		s.calibrated++
		s.noise += (level - s.noise) / float64(s.calibrated)
		return ev, nil
	}

	speech := level > s.threshold()
	s.push(speech)

	switch {
	case !s.inSpeech && s.speechCount >= s.cfg.SpeechFrames && s.debounced():
		s.inSpeech = true
		ev.Type = vad.EventSpeechStarted
	case s.inSpeech && s.filled == len(s.window) && s.speechCount == 0:
		s.inSpeech = false
		s.lastEnded = s.elapsed
		s.everEnded = true
		ev.Type = vad.EventSpeechEnded
	}

	if !speech {
		s.noise = noiseDecay*s.noise + (1-noiseDecay)*level
	}
	ev.InSpeech = s.inSpeech
	return ev, nil
}

// NoiseFloor returns the current background noise estimate.
func (s *Session) NoiseFloor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noise
}

// Reset implements [vad.SessionHandle].
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Close implements [vad.SessionHandle].
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) threshold() float64 {
	return max(s.cfg.StaticThreshold, s.noise*s.cfg.NoiseMultiplier)
}

func (s *Session) debounced() bool {
	return !s.everEnded || s.elapsed-s.lastEnded > s.cfg.Debounce
}

// push records a classification in the ring, evicting the oldest one.
func (s *Session) push(speech bool) {
	if s.filled == len(s.window) {
		if s.window[s.head] {
			s.speechCount--
		}
	} else {
		s.filled++
	}
	s.window[s.head] = speech
	if speech {
		s.speechCount++
	}
	s.head = (s.head + 1) % len(s.window)
}

func (s *Session) reset() {
	s.calibrated = 0
	s.noise = 0
	clear(s.window)
	s.head = 0
	s.filled = 0
	s.speechCount = 0
	s.inSpeech = false
	s.elapsed = 0
	s.lastEnded = 0
	s.everEnded = false
}

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)
