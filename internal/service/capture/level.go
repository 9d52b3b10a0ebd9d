package capture

import (
	"encoding/binary"
	"math"
)

// SilenceDB is the level below which a frame counts as silent.
const SilenceDB = -50.0

// RMS computes the root mean square of little-endian int16 samples.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sumSquares += s * s
	}
	return math.Sqrt(sumSquares / float64(n))
}

// LevelDB converts the frame RMS to dBFS, clamped to [-80, 0].
func LevelDB(pcm []byte) float64 {
	rms := RMS(pcm)
	if rms < 1 {
		rms = 1
	}
	db := 20 * math.Log10(rms/32768)
	return math.Max(-80, math.Min(0, db))
}

// IsSilent reports whether the frame level is under SilenceDB.
func IsSilent(pcm []byte) bool {
	return LevelDB(pcm) < SilenceDB
}
