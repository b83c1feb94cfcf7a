// Package playback schedules inbound audio chunks for gapless playback.
//
// The scheduler keeps a single running "next available start time" on the
// playback sink's own monotonic clock. Each arriving chunk is placed at
// max(clock now, next available), so chunks belonging to one turn play
// back-to-back with no gaps and no overlap regardless of network jitter.
// Flush is the barge-in path: a hard stop that discards everything pending
// and resets the timeline.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godt333/voicelink/pkg/audio"
)

// Scheduler owns the playback sink and its scheduling timeline. All methods
// are safe for concurrent use; Flush in particular may be called from any
// point in the event flow, including when nothing is playing.
type Scheduler struct {
	sink       audio.PlaybackSink
	sampleRate int

	mu        sync.Mutex
	nextStart time.Duration // next available start on the sink clock
	pending   int           // chunks scheduled but not yet finished
	onDrained func()
	drain     *time.Timer
	closed    bool
}

// New creates a Scheduler playing through sink at the given sample rate.
func New(sink audio.PlaybackSink, sampleRate int) *Scheduler {
	return &Scheduler{
		sink:       sink,
		sampleRate: sampleRate,
	}
}

// SetOnDrained registers a callback invoked once the queue has drained
// naturally (all scheduled chunks played to the end, no Flush involved).
// Used to disarm the barge-in monitor when the remote party stops speaking.
func (s *Scheduler) SetOnDrained(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrained = fn
}

// Submit schedules one chunk of 16-bit LE mono PCM for gapless playback.
func (s *Scheduler) Submit(pcm []byte) error {
	dur := audio.PCMDuration(pcm, s.sampleRate)
	if dur <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("playback: scheduler closed")
	}

	now := s.sink.ClockTime()
	startAt := s.nextStart
	if now > startAt {
		// The queue ran dry (or this is the first chunk of a turn): start as
		// soon as the hardware can, not at the stale tail position.
		startAt = now
	}

	if err := s.sink.PlayAt(pcm, startAt); err != nil {
		return fmt.Errorf("playback: schedule chunk: %w", err)
	}

	s.nextStart = startAt + dur
	s.pending++
	s.rescheduleDrainLocked(s.nextStart - now)
	return nil
}

// Flush discards all scheduled-but-unplayed chunks, resets the timeline and
// hard-stops the sink. Safe to call at any time; a flush with nothing
// pending is a no-op apart from the sink reset.
func (s *Scheduler) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.pending = 0
	s.nextStart = 0
	if s.drain != nil {
		s.drain.Stop()
		s.drain = nil
	}

	if err := s.sink.Reset(); err != nil {
		return fmt.Errorf("playback: flush: %w", err)
	}
	return nil
}

// Pending returns the number of chunks scheduled but not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// NextStart returns the current next-available start position on the sink
// clock. Zero when the timeline has been reset.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Close flushes and releases the sink. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.drain != nil {
		s.drain.Stop()
		s.drain = nil
	}
	s.mu.Unlock()

	if err := s.sink.Reset(); err != nil {
		slog.Warn("playback: reset on close", "err", err)
	}
	return s.sink.Close()
}

// rescheduleDrainLocked (re)arms the drain timer to fire when the last
// scheduled chunk finishes. Must be called with s.mu held.
func (s *Scheduler) rescheduleDrainLocked(remaining time.Duration) {
	if s.drain != nil {
		s.drain.Stop()
	}
	s.drain = time.AfterFunc(remaining, s.drained)
}

// drained marks the queue empty after natural playback completion and fires
// the registered callback. The timer runs on the wall clock but the sink
// clock is authoritative: when the sink lags behind (device startup, stalled
// output), the check is pushed out until the gap should have closed.
func (s *Scheduler) drained() {
	s.mu.Lock()
	if s.closed || s.pending == 0 {
		s.mu.Unlock()
		return
	}
	if lag := s.nextStart - s.sink.ClockTime(); lag > 0 {
		if lag < time.Millisecond {
			lag = time.Millisecond
		}
		s.rescheduleDrainLocked(lag)
		s.mu.Unlock()
		return
	}
	s.pending = 0
	s.drain = nil
	fn := s.onDrained
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
