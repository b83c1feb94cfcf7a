package audio_test

import (
	"math"
	"testing"

	"github.com/godt333/voicelink/pkg/audio"
)

func TestRMSEnergy_Silence(t *testing.T) {
	t.Parallel()

	if got := audio.RMSEnergy(make([]byte, 640)); got != 0 {
		t.Errorf("RMSEnergy(silence) = %v, want 0", got)
	}
}

func TestRMSEnergy_Empty(t *testing.T) {
	t.Parallel()

	if got := audio.RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %v, want 0", got)
	}
	if got := audio.RMSEnergy([]byte{0x01}); got != 0 {
		t.Errorf("RMSEnergy(odd buffer) = %v, want 0", got)
	}
}

func TestRMSEnergy_FullScale(t *testing.T) {
	t.Parallel()

	got := audio.RMSEnergy(pcm16(32767, -32768, 32767, -32768))
	if got < 0.99 || got > 1 {
		t.Errorf("RMSEnergy(full scale square) = %v, want ≈1", got)
	}
}

func TestRMSEnergy_HalfScale(t *testing.T) {
	t.Parallel()

	got := audio.RMSEnergy(pcm16(16384, -16384, 16384, -16384))
	if math.Abs(got-0.5) > 0.01 {
		t.Errorf("RMSEnergy(half scale square) = %v, want ≈0.5", got)
	}
}

func TestRMSEnergy_IsNormalized(t *testing.T) {
	t.Parallel()

	for _, amp := range []int16{100, 1000, 10000, 32767} {
		got := audio.RMSEnergy(pcm16(amp, -amp))
		if got < 0 || got > 1 {
			t.Errorf("RMSEnergy at amplitude %d = %v, out of [0,1]", amp, got)
		}
	}
}
