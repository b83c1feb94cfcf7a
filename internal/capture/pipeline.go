// Package capture owns the microphone side of the pipeline: it acquires the
// exclusive capture device, converts floating-point input to clamped 16-bit
// PCM at the configured capture rate, re-slices it into fixed-size frames and
// forwards each frame as it becomes available.
//
// The pipeline also publishes a rolling energy level for the barge-in
// monitor, so no second component ever has to open the microphone.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godt333/voicelink/pkg/audio"
)

// ErrNotConnected is returned by Start when the session is not in the
// connected state. Capturing before the backend is ready would silently drop
// input on the floor.
var ErrNotConnected = errors.New("capture: session not connected")

// Compile-time assertion: the pipeline is the mic level source.
var _ audio.LevelReader = (*Pipeline)(nil)

const (
	// DefaultSampleRate is the outbound capture rate in Hz.
	DefaultSampleRate = 16000

	// DefaultFrameDuration is the fixed size of forwarded frames.
	DefaultFrameDuration = 20 * time.Millisecond
)

// Config holds the capture pipeline parameters.
type Config struct {
	// SampleRate is the target outbound rate in Hz. Defaults to 16000.
	SampleRate int

	// FrameDuration is the fixed frame size. Defaults to 20ms.
	FrameDuration time.Duration
}

// Pipeline converts raw device buffers into fixed-size outbound PCM frames.
//
// Start and Stop are idempotent. Stop releases the device unconditionally —
// it also runs when the device stream fails mid-capture, so an open
// microphone can never outlive the pipeline.
type Pipeline struct {
	device    audio.CaptureDevice
	rate      int
	frameLen  int // bytes per outbound frame
	forward   func(audio.Frame)
	connected func() bool

	level atomic.Uint64 // math.Float64bits of the last frame's RMS energy

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates a Pipeline reading from device. Each completed frame is passed
// to forward; connected gates Start on the session state.
func New(device audio.CaptureDevice, cfg Config, forward func(audio.Frame), connected func() bool) *Pipeline {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	frameDur := cfg.FrameDuration
	if frameDur <= 0 {
		frameDur = DefaultFrameDuration
	}
	samples := int(int64(rate) * int64(frameDur) / int64(time.Second))

	return &Pipeline{
		device:    device,
		rate:      rate,
		frameLen:  samples * 2,
		forward:   forward,
		connected: connected,
	}
}

// Start acquires the microphone and begins forwarding frames. Starting an
// already running pipeline is a no-op. Returns [ErrNotConnected] when the
// session is not connected, or the device error on acquisition failure
// (e.g. permission denied) — the session stays usable either way.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if p.connected != nil && !p.connected() {
		return ErrNotConnected
	}

	ch, err := p.device.Start(ctx)
	if err != nil {
		// Release whatever the device may have half-acquired.
		_ = p.device.Stop()
		return fmt.Errorf("capture: acquire microphone: %w", err)
	}

	p.running = true
	p.wg.Add(1)
	go p.run(ch)
	return nil
}

// Stop releases the microphone and waits for the forwarding goroutine to
// finish. Stopping a stopped pipeline is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	err := p.device.Stop()
	p.wg.Wait()
	return err
}

// Running reports whether the pipeline currently holds the microphone.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Level returns the most recent frame's RMS energy, normalized to [0, 1].
// Implements [audio.LevelReader] for the barge-in monitor.
func (p *Pipeline) Level() float64 {
	return math.Float64frombits(p.level.Load())
}

// run converts and forwards buffers until the device stream ends.
func (p *Pipeline) run(ch <-chan audio.CaptureBuffer) {
	defer p.wg.Done()
	// Release on every exit path, including mid-capture device failure.
	defer func() {
		_ = p.device.Stop()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.level.Store(0)
	}()

	var (
		acc     []byte
		elapsed time.Duration
	)

	for buf := range ch {
		pcm := audio.Float32ToPCM16(buf.Samples)
		if buf.SampleRate != p.rate {
			pcm = audio.ResampleMono16(pcm, buf.SampleRate, p.rate)
		}
		if len(pcm) == 0 {
			continue
		}

		p.level.Store(math.Float64bits(audio.RMSEnergy(pcm)))

		acc = append(acc, pcm...)
		for len(acc) >= p.frameLen {
			frame := audio.Frame{
				PCM:        append([]byte(nil), acc[:p.frameLen]...),
				SampleRate: p.rate,
				Timestamp:  elapsed,
			}
			acc = acc[p.frameLen:]
			elapsed += frame.Duration()
			p.forward(frame)
		}
	}

	if len(acc) > 0 {
		slog.Debug("capture: discarding partial tail frame", "bytes", len(acc))
	}
}
