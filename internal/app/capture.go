package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/nara/internal/interaction"
	"github.com/MrWong99/nara/pkg/audio"
	"github.com/MrWong99/nara/pkg/provider/stt"
	"github.com/MrWong99/nara/pkg/provider/vad"
	"github.com/MrWong99/nara/pkg/types"
)

// capture runs the microphone path until ctx is cancelled or the source ends:
//
//	source ─▶ convert ─┬─▶ STT session ─▶ wake recognizer
//	                   └─▶ VAD ─▶ SignalSpeech
//
// Every frame goes to STT so the recognizer sees partials for early wake
// detection. VAD only raises speech-start signals; it never gates STT.
func (a *App) capture(ctx context.Context) error {
	vcfg := vadConfig(a.cfg.Voice)
	vadSession, err := a.providers.VAD.NewSession(vcfg)
	if err != nil {
		return fmt.Errorf("app: start vad session: %w", err)
	}
	defer vadSession.Close()

	start := time.Now()
	session, err := a.providers.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: vcfg.SampleRate,
		Channels:   1,
	})
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordProviderError(ctx, a.cfg.Providers.STT.Name, "stt")
		return fmt.Errorf("app: start stt stream: %w", err)
	}
	a.metrics.RecordProviderRequest(ctx, a.cfg.Providers.STT.Name, "stt", "ok")
	defer session.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.pumpTranscripts(gctx, session)
		return nil
	})
	g.Go(func() error {
		return a.pumpFrames(gctx, session, vadSession, vcfg)
	})
	return g.Wait()
}

// pumpFrames feeds converted capture frames to STT and the VAD.
func (a *App) pumpFrames(ctx context.Context, session stt.SessionHandle, vadSession vad.SessionHandle, vcfg vad.Config) error {
	target := audio.Format{SampleRate: vcfg.SampleRate, Channels: 1}
	frames := audio.ConvertStream(ctx, a.source.Frames(), target)
	fr := newFramer(vcfg.FrameBytes())

	var sttWarned bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				slog.Info("app: capture source closed")
				return nil
			}
			if err := session.SendAudio(f.Data); err != nil && !sttWarned {
				slog.Warn("app: stt send failed", "err", err)
				sttWarned = true
			}
			for _, frame := range fr.push(f.Data) {
				ev, err := vadSession.ProcessFrame(frame)
				if err != nil {
					slog.Warn("app: vad frame rejected", "err", err)
					continue
				}
				a.handleVAD(ctx, ev)
			}
		}
	}
}

func (a *App) handleVAD(ctx context.Context, ev vad.Event) {
	switch ev.Type {
	case vad.EventSpeechStarted:
		a.metrics.RecordVADEvent(ctx, ev.Type.String())
		if err := a.orch.Send(ctx, interaction.Signal{Kind: interaction.SignalSpeech}); err != nil {
			slog.Debug("app: dropping speech signal", "err", err)
		}
	case vad.EventSpeechEnded:
		a.metrics.RecordVADEvent(ctx, ev.Type.String())
	}
}

// pumpTranscripts forwards partial and final transcripts to the recognizer
// until both channels close or ctx is cancelled.
func (a *App) pumpTranscripts(ctx context.Context, session stt.SessionHandle) {
	partials, finals := session.Partials(), session.Finals()
	for partials != nil || finals != nil {
		var (
			t  types.Transcript
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case t, ok = <-partials:
			if !ok {
				partials = nil
				continue
			}
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		}
		a.recognizer.HandleTranscript(t)
	}
}

// framer re-slices an arbitrary byte stream into fixed-size VAD frames.
type framer struct {
	size int
	buf  []byte
}

func newFramer(size int) *framer {
	return &framer{size: size, buf: make([]byte, 0, size*2)}
}

// push appends data and returns every complete frame. The returned slices
// are copies and stay valid after the next push.
func (f *framer) push(data []byte) [][]byte {
	f.buf = append(f.buf, data...)
	var out [][]byte
	for len(f.buf) >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.buf[:f.size])
		out = append(out, frame)
		f.buf = f.buf[f.size:]
	}
	// Compact so the backing array does not grow without bound.
	f.buf = append(f.buf[:0:0], f.buf...)
	return out
}
