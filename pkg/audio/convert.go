package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Converter normalises captured frames to the format the VAD and STT session
// expect and stamps each frame with its [Level]. It logs once on the first
// format mismatch and once on the first corrupt frame.
//
// Create one per stream; a Converter is not meant to be shared across goroutines.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. Channels are reduced first so the
// resampler only ever processes mono data. Frames with an odd byte count are
// returned with nil Data and should be dropped by the caller.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM frame, dropping",
				"bytes", len(frame.Data),
				"format", formatString(frame.SampleRate, frame.Channels),
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	out := frame
	if frame.SampleRate != c.Target.SampleRate || frame.Channels != c.Target.Channels {
		c.warnedMismatch.Do(func() {
			slog.Info("audio: converting capture format",
				"from", formatString(frame.SampleRate, frame.Channels),
				"to", formatString(c.Target.SampleRate, c.Target.Channels),
			)
		})
		pcm := frame.Data
		if frame.Channels == 2 && c.Target.Channels == 1 {
			pcm = StereoToMono(pcm)
		}
		pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)
		out = AudioFrame{
			Data:       pcm,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}
	out.Level = Level(out.Data)
	return out
}

// ConvertStream converts every frame read from in and forwards it on the
// returned channel, which is closed when in closes or ctx is cancelled.
// Empty frames are dropped.
func ConvertStream(ctx context.Context, in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, max(cap(in), 1))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			f := conv.Convert(frame)
			if len(f.Data) == 0 {
				continue
			}
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// StereoToMono averages each interleaved L/R pair of 16-bit samples.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8))
		r := int32(int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8))
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. Equal or invalid rates return pcm unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := len(pcm) / 2
	dst := int(int64(src) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}

	out := make([]byte, dst*2)
	step := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= src {
			next = idx
		}
		v := int16(sample(idx)*(1-frac) + sample(next)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// formatString renders a format for log output, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
