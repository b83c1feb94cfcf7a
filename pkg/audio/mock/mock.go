// Package mock provides in-memory test doubles for the audio device
// interfaces. None of them touch real hardware, making them safe for
// parallel unit tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/godt333/voicelink/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.CaptureDevice = (*CaptureDevice)(nil)
	_ audio.PlaybackSink  = (*PlaybackSink)(nil)
	_ audio.LevelReader   = (*Level)(nil)
)

// CaptureDevice is a fake microphone. Tests push buffers in via [CaptureDevice.Emit].
type CaptureDevice struct {
	// SampleRate is stamped onto emitted buffers. Defaults to 48000.
	SampleRate int

	// StartErr, when non-nil, is returned by Start (simulates permission denial).
	StartErr error

	mu      sync.Mutex
	ch      chan audio.CaptureBuffer
	started bool
	starts  int
	stops   int
}

// Start acquires the fake microphone. A second Start without an intervening
// Stop returns the same channel.
func (d *CaptureDevice) Start(_ context.Context) (<-chan audio.CaptureBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.StartErr != nil {
		return nil, d.StartErr
	}
	d.starts++
	if d.started {
		return d.ch, nil
	}
	d.started = true
	d.ch = make(chan audio.CaptureBuffer, 64)
	return d.ch, nil
}

// Stop releases the fake microphone and closes the buffer channel.
func (d *CaptureDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stops++
	if !d.started {
		return nil
	}
	d.started = false
	close(d.ch)
	d.ch = nil
	return nil
}

// Emit pushes one buffer of samples into the running stream. Dropped if the
// device is stopped.
func (d *CaptureDevice) Emit(samples []float32) {
	d.mu.Lock()
	ch := d.ch
	rate := d.SampleRate
	d.mu.Unlock()

	if ch == nil {
		return
	}
	if rate == 0 {
		rate = 48000
	}
	ch <- audio.CaptureBuffer{Samples: samples, SampleRate: rate}
}

// Started reports whether the device currently holds the fake microphone.
func (d *CaptureDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Counts returns how many times Start and Stop have been called.
func (d *CaptureDevice) Counts() (starts, stops int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.stops
}

// ScheduledChunk records one PlayAt call on a [PlaybackSink].
type ScheduledChunk struct {
	PCM []byte
	At  time.Duration
}

// PlaybackSink is a fake playback device with a manually advanced clock.
// Tests control time via [PlaybackSink.AdvanceClock], so scheduling
// arithmetic can be asserted deterministically.
type PlaybackSink struct {
	mu        sync.Mutex
	clock     time.Duration
	scheduled []ScheduledChunk
	resets    int
	closed    bool
}

// ClockTime returns the fake clock position.
func (s *PlaybackSink) ClockTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// AdvanceClock moves the fake clock forward by d.
func (s *PlaybackSink) AdvanceClock(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock += d
}

// PlayAt records the chunk and its scheduled start.
func (s *PlaybackSink) PlayAt(pcm []byte, at time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.scheduled = append(s.scheduled, ScheduledChunk{PCM: cp, At: at})
	return nil
}

// Reset discards recorded chunks and restarts the clock from zero.
func (s *PlaybackSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = nil
	s.clock = 0
	s.resets++
	return nil
}

// Close marks the sink closed. Idempotent.
func (s *PlaybackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Scheduled returns a copy of all recorded PlayAt calls since the last Reset.
func (s *PlaybackSink) Scheduled() []ScheduledChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledChunk, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}

// Resets returns how many times Reset has been called.
func (s *PlaybackSink) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Level is a settable [audio.LevelReader].
type Level struct {
	mu sync.Mutex
	v  float64
}

// Set stores the level returned by subsequent Level calls.
func (l *Level) Set(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = v
}

// Level returns the stored level.
func (l *Level) Level() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v
}
