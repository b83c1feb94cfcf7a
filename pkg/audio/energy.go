package audio

import "math"

// RMSEnergy computes the root-mean-square energy of a 16-bit mono PCM buffer,
// normalized to [0, 1] where 1.0 is a full-scale signal. Returns 0 for empty
// or misaligned input.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := range samples {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(samples)) / 32768.0
	if rms > 1 {
		rms = 1
	}
	return rms
}
