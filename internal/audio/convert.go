package audio

import (
	"encoding/binary"
	"math"
)

// FloatToInt16 quantizes normalized samples to 16-bit PCM. Samples are
// clamped to [-1, 1] and scaled asymmetrically (32768 for negative values,
// 32767 otherwise) with truncation toward zero. The truncation matters:
// the peers on the wire quantize the same way, and round-to-nearest would
// break bit-for-bit interop.
func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		if s < 0 {
			out[i] = int16(s * 32768.0)
		} else {
			out[i] = int16(s * 32767.0)
		}
	}
	return out
}

func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Resample converts input between sample rates by linear interpolation.
// Output length is floor(len(input) / (fromRate/toRate)). There is no
// anti-aliasing filter; latency wins over fidelity here.
func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || len(input) == 0 {
		return nil
	}
	if fromRate == toRate {
		return input
	}

	ratio := float64(fromRate) / float64(toRate)
	outputLen := int(float64(len(input)) / ratio)
	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		next := srcIdx + 1
		if next >= len(input) {
			next = len(input) - 1
		}
		output[i] = input[srcIdx]*(1-frac) + input[next]*frac
	}
	return output
}

func Int16ToPCMBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// RMS is the root-mean-square energy of a normalized sample window.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
