package media

import "math"

func downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// resample converts mono samples from srcRate to dstRate with linear interpolation.
func resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}
	outLen := int(math.Round(float64(len(samples)) * float64(dstRate) / float64(srcRate)))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	step := float64(srcRate) / float64(dstRate)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

func quantize16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		out[i] = int(math.Round(s * math.MaxInt16))
	}
	return out
}
