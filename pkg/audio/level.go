package audio

import (
	"encoding/binary"
	"math"
)

// Level returns the RMS energy of 16-bit little-endian PCM, normalised to
// [0.0, 1.0] against full scale. A trailing odd byte is ignored. Empty input
// has level 0.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(n)) / 32768.0
	return min(rms, 1.0)
}
