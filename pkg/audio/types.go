package audio

import "time"

// Frame is a single buffer of audio flowing through the pipeline. Frames are
// the atomic transport unit: captured from the microphone, converted and
// re-sliced by the capture pipeline, and encoded onto the session channel.
type Frame struct {
	// PCM holds 16-bit signed little-endian mono samples.
	PCM []byte

	// SampleRate in Hz (e.g. 16000 for capture, 24000 for playback).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame's PCM data.
func (f Frame) Duration() time.Duration {
	return PCMDuration(f.PCM, f.SampleRate)
}

// PCMDuration returns the duration of a pcm16 mono buffer at the given rate.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
}
