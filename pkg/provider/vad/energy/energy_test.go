package energy_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/nara/pkg/provider/vad"
	"github.com/MrWong99/nara/pkg/provider/vad/energy"
)

const (
	quiet = 100  // ≈0.003 level
	loud  = 8000 // ≈0.244 level
)

// frame returns one 20 ms 16 kHz mono frame of alternating ±amp samples.
func frame(amp int16) []byte {
	buf := make([]byte, 640)
	for i := range 320 {
		s := amp
		if i%2 == 1 {
			s = -amp
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// feed pushes n frames of amplitude amp and counts the edge events raised.
func feed(t *testing.T, s vad.SessionHandle, amp int16, n int) (started, ended int) {
	t.Helper()
	f := frame(amp)
	for range n {
		ev, err := s.ProcessFrame(f)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		switch ev.Type {
		case vad.EventSpeechStarted:
			started++
		case vad.EventSpeechEnded:
			ended++
		}
	}
	return started, ended
}

func calibrate(t *testing.T, s vad.SessionHandle) {
	t.Helper()
	feed(t, s, quiet, vad.DefaultConfig().CalibrationFrames)
}

func TestSession_NoEventsDuringCalibration(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	started, ended := feed(t, s, loud, vad.DefaultConfig().CalibrationFrames)
	if started != 0 || ended != 0 {
		t.Errorf("events during calibration: started=%d ended=%d, want none", started, ended)
	}
}

func TestSession_BurstRaisesExactlyOneStart(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	calibrate(t, s)

	started, _ := feed(t, s, loud, 6)
	s2, e2 := feed(t, s, quiet, 4)
	started += s2

	if started != 1 {
		t.Errorf("speechStarted count = %d, want 1", started)
	}
	if e2 != 0 {
		t.Errorf("speechEnded count = %d, want 0 while window still holds speech", e2)
	}
}

func TestSession_FiveOfTenDoesNotStart(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	calibrate(t, s)

	started, _ := feed(t, s, loud, 5)
	s2, _ := feed(t, s, quiet, 5)
	if started+s2 != 0 {
		t.Errorf("speechStarted count = %d, want 0", started+s2)
	}
}

func TestSession_EndRequiresFullySilentWindow(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	calibrate(t, s)
	feed(t, s, loud, 6)

	if _, ended := feed(t, s, quiet, 9); ended != 0 {
		t.Fatalf("ended after 9 silent frames, want only after 10")
	}
	if _, ended := feed(t, s, quiet, 1); ended != 1 {
		t.Errorf("speechEnded count = %d after 10 silent frames, want 1", ended)
	}
}

func TestSession_DebounceSuppressesRestart(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	calibrate(t, s)

	feed(t, s, loud, 6)
	if _, ended := feed(t, s, quiet, 10); ended != 1 {
		t.Fatalf("expected the first segment to end")
	}

	// 120 ms after the end, well inside the 500 ms debounce.
	if started, _ := feed(t, s, loud, 6); started != 0 {
		t.Errorf("speechStarted within debounce = %d, want 0", started)
	}

	// Let the window clear and the debounce expire, then speak again.
	feed(t, s, quiet, 30)
	if started, _ := feed(t, s, loud, 6); started != 1 {
		t.Errorf("speechStarted after debounce = %d, want 1", started)
	}
}

func TestSession_NoiseFloorTracksSilenceOnly(t *testing.T) {
	t.Parallel()
	h := newSession(t)
	s, ok := h.(*energy.Session)
	if !ok {
		t.Fatalf("session type = %T, want *energy.Session", h)
	}
	calibrate(t, s)
	initial := s.NoiseFloor()

	// A louder but still sub-threshold room raises the floor.
	feed(t, s, 400, 200)
	raised := s.NoiseFloor()
	if raised <= initial*2 {
		t.Errorf("noise floor %v did not adapt from %v", raised, initial)
	}

	// Speech frames leave it untouched.
	feed(t, s, loud, 3)
	if got := s.NoiseFloor(); got != raised {
		t.Errorf("noise floor changed during speech: %v → %v", raised, got)
	}
}

func TestSession_ResetRecalibrates(t *testing.T) {
	t.Parallel()
	s := newSession(t)
	calibrate(t, s)
	feed(t, s, loud, 6)

	s.Reset()
	started, ended := feed(t, s, loud, 10)
	if started != 0 || ended != 0 {
		t.Errorf("events right after Reset: started=%d ended=%d, want none", started, ended)
	}
}

func TestSession_Errors(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	if _, err := s.ProcessFrame(make([]byte, 10)); err == nil {
		t.Error("expected error for wrong frame size")
	}
	_ = s.Close()
	if _, err := s.ProcessFrame(frame(quiet)); !errors.Is(err, vad.ErrClosed) {
		t.Errorf("ProcessFrame after Close: got %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEngine_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.SpeechFrames = cfg.WindowFrames + 1
	cfg.SampleRate = 0
	if _, err := energy.New().NewSession(cfg); err == nil {
		t.Fatal("expected validation error")
	}
}
