package audio

import (
	"context"
	"sync"
	"time"
)

// Compile-time interface assertions.
var (
	_ CaptureDevice = (*SilenceCapture)(nil)
	_ PlaybackSink  = (*WallClockSink)(nil)
)

// SilenceCapture is a headless capture device producing silent buffers at a
// real-time pace. It stands in for a microphone when voicelink runs without
// audio hardware, e.g. in containers or smoke tests.
type SilenceCapture struct {
	// Rate is the produced sample rate in Hz. Defaults to 16000.
	Rate int

	// Interval is the buffer cadence. Defaults to 20ms.
	Interval time.Duration

	mu     sync.Mutex
	ch     chan CaptureBuffer
	cancel context.CancelFunc
}

// Start begins emitting silent buffers until Stop or ctx cancellation. A
// device that is already running hands back its live stream.
func (d *SilenceCapture) Start(ctx context.Context) (<-chan CaptureBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ch != nil {
		return d.ch, nil
	}

	rate := d.Rate
	if rate <= 0 {
		rate = 16000
	}
	interval := d.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	samples := int(int64(rate) * int64(interval) / int64(time.Second))

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan CaptureBuffer)
	d.ch = ch
	d.cancel = cancel

	go func() {
		defer func() {
			close(ch)
			// Clear the stream if the context died out from under a still
			// "running" device, so the next Start gets a fresh stream.
			d.mu.Lock()
			if d.ch == ch {
				d.ch = nil
				d.cancel = nil
			}
			d.mu.Unlock()
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				buf := CaptureBuffer{Samples: make([]float32, samples), SampleRate: rate}
				select {
				case ch <- buf:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Stop ends the silent stream. Idempotent.
func (d *SilenceCapture) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.ch = nil
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// WallClockSink is a headless playback sink whose clock advances with wall
// time. Scheduled audio is discarded; the clock arithmetic still behaves like
// a real device, so scheduling logic runs unchanged.
type WallClockSink struct {
	mu    sync.Mutex
	epoch time.Time
}

// ClockTime returns the time elapsed since the sink's epoch.
func (s *WallClockSink) ClockTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch.IsZero() {
		s.epoch = time.Now()
	}
	return time.Since(s.epoch)
}

// PlayAt discards the audio.
func (s *WallClockSink) PlayAt([]byte, time.Duration) error { return nil }

// Reset restarts the clock from zero.
func (s *WallClockSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = time.Now()
	return nil
}

// Close is a no-op.
func (s *WallClockSink) Close() error { return nil }
