// Package capture turns a live sample stream into fixed-size PCM frames for the STT stream.
package capture

import (
	"encoding/binary"
	"math"
)

// Resampler converts float samples at an input rate to 16-bit PCM at a fixed output rate
// using nearest-neighbor selection. It keeps a fractional position across calls so that
// consecutive blocks resample as one continuous stream.
type Resampler struct {
	inRate  int
	outRate int
	// next output sample index and the number of input samples consumed so far
	outPos int64
	inPos  int64
}

// NewResampler creates a resampler from inRate to outRate.
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{inRate: inRate, outRate: outRate}
}

// Process appends little-endian int16 samples for in to dst and returns it.
func (r *Resampler) Process(dst []byte, in []float32) []byte {
	if r.inRate <= 0 || r.outRate <= 0 {
		return dst
	}
	end := r.inPos + int64(len(in))
	for {
		src := r.outPos * int64(r.inRate) / int64(r.outRate)
		if src >= end {
			break
		}
		idx := src - r.inPos
		if idx >= 0 {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(FloatToPCM16(in[idx])))
		}
		r.outPos++
	}
	r.inPos = end
	return dst
}

// Resample converts one complete block from inRate to outRate.
// For output index i the source index is floor(i*inRate/outRate).
func Resample(in []float32, inRate, outRate int) []byte {
	return NewResampler(inRate, outRate).Process(nil, in)
}

// FloatToPCM16 scales a [-1,1] float sample to int16, clamping out-of-range values.
func FloatToPCM16(s float32) int16 {
	v := math.Max(-1, math.Min(1, float64(s)))
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * math.MaxInt16)
}

// PCM16ToFloat decodes little-endian int16 samples into [-1,1] floats.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out
}

// DecodeFloat32LE decodes the browser wire format: little-endian float32 samples.
// A trailing partial sample is ignored.
func DecodeFloat32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
	return out
}
