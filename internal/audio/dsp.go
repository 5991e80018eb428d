package audio

import (
	"encoding/binary"
	"math"
)

// ToMono averages interleaved frames down to a single channel.
func ToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ApplyGain scales samples in place and clamps them to [-1, 1].
func ApplyGain(samples []float32, gain float32) {
	if gain == 1 {
		return
	}
	for i, s := range samples {
		v := s * gain
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		samples[i] = v
	}
}

// Resample converts a complete signal between rates with linear
// interpolation.
func Resample(in []float32, from, to uint32) []float32 {
	return newResampler(from, to).process(in)
}

// resampler is a streaming linear resampler. It carries the last input
// sample and the fractional read position across calls so chunk boundaries
// do not produce clicks.
type resampler struct {
	ratio float64 // input samples per output sample
	pos   float64 // next read position relative to the start of the next input
	prev  float32
}

func newResampler(from, to uint32) *resampler {
	ratio := 1.0
	if from > 0 && to > 0 {
		ratio = float64(from) / float64(to)
	}
	return &resampler{ratio: ratio}
}

func (r *resampler) process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if r.ratio == 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	out := make([]float32, 0, int(float64(len(in))/r.ratio)+1)
	for {
		i := int(math.Floor(r.pos))
		if i+1 >= len(in) {
			break
		}
		frac := float32(r.pos - float64(i))
		a := r.prev
		if i >= 0 {
			a = in[i]
		}
		b := in[i+1]
		out = append(out, a+(b-a)*frac)
		r.pos += r.ratio
	}
	r.pos -= float64(len(in))
	r.prev = in[len(in)-1]
	return out
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
