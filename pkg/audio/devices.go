// Package audio defines the types and device interfaces for the voicelink
// audio pipeline.
//
// The two primary abstractions are:
//
//   - [CaptureDevice] — an exclusive microphone stream delivering raw sample
//     buffers as they become available.
//   - [PlaybackSink] — a playback device exposing its own monotonic sample
//     clock, against which the scheduler places chunks back-to-back.
//
// Implementations wrap platform audio backends; the mock sub-package provides
// in-memory doubles for tests. The interfaces are intentionally narrow so the
// capture pipeline and playback scheduler stay decoupled from device details.
//
// This package lives under pkg/ because device adapters for new platforms are
// expected to implement these interfaces.
package audio

import (
	"context"
	"time"
)

// CaptureBuffer is one buffer-ready callback's worth of raw microphone input,
// delivered in the device's native float sample format before the pipeline
// converts it to PCM16.
type CaptureBuffer struct {
	// Samples are mono floating-point samples in the nominal range [-1, 1].
	Samples []float32

	// SampleRate is the device's native capture rate in Hz.
	SampleRate int
}

// CaptureDevice is an exclusive handle on the microphone.
//
// Start and Stop are idempotent: starting an already started device returns
// the same stream, stopping an already stopped device is a no-op. Stop must
// release the underlying hardware unconditionally so a dangling "recording"
// indicator can never outlive the pipeline.
//
// Implementations must be safe for concurrent use.
type CaptureDevice interface {
	// Start acquires the microphone and returns a channel of raw buffers.
	// The channel is closed when the device is stopped or the stream fails.
	// ctx governs the acquisition (permission grant) only.
	Start(ctx context.Context) (<-chan CaptureBuffer, error)

	// Stop releases the microphone and closes the buffer channel. Safe to
	// call at any time, including before Start and more than once.
	Stop() error
}

// PlaybackSink is a playback device with its own monotonic clock domain.
//
// The scheduler computes start times against ClockTime rather than the wall
// clock: hardware playback position drifts relative to time.Now, and wall
// clock scheduling would reintroduce audible gaps between chunks.
//
// Implementations must be safe for concurrent use.
type PlaybackSink interface {
	// ClockTime returns the current position of the playback clock. The clock
	// starts at zero and restarts from zero after Reset.
	ClockTime() time.Duration

	// PlayAt schedules pcm (16-bit LE mono at the sink's configured rate) to
	// begin playing at the given clock position. Chunks scheduled in the past
	// begin as soon as possible.
	PlayAt(pcm []byte, at time.Duration) error

	// Reset hard-stops playback, discards everything scheduled but not yet
	// played, and restarts the clock from zero. Safe to call when idle.
	Reset() error

	// Close releases the playback device. Idempotent.
	Close() error
}

// LevelReader reports the current microphone energy level, normalized to
// [0, 1]. The capture pipeline implements this for the barge-in monitor;
// readers must never block.
type LevelReader interface {
	Level() float64
}
