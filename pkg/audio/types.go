package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the capture path.
// Frames are produced continuously by a [Source], classified by the VAD and
// forwarded to the STT session. They are never persisted.
type AudioFrame struct {
	// Data holds 16-bit little-endian PCM samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for browser capture, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration

	// Level is the normalised RMS energy of Data in [0.0, 1.0]. It is filled in
	// by [Converter.Convert]; sources may leave it zero.
	Level float64
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the number of bytes a mono-or-stereo 16-bit frame of
// duration d occupies in this format.
func (f Format) FrameBytes(d time.Duration) int {
	samples := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return samples * f.Channels * 2
}
