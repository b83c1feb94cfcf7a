// Package bargein detects the user interrupting synthesized playback by
// speaking over it.
//
// A Monitor polls live microphone energy on a short fixed interval while
// armed. Energy must stay above the sensitivity tier's threshold for the
// tier's full detection delay before the cancellation callback fires — a
// single loud transient (door slam, cough) resets the timer instead of
// cutting off playback. The monitor fires at most once per arm cycle and
// disarms itself afterwards.
package bargein

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godt333/voicelink/pkg/audio"
)

// Sensitivity selects how aggressively barge-in triggers. Lower delay and
// threshold react faster but are more prone to background-noise triggers.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// IsValid reports whether s is a recognised sensitivity tier.
func (s Sensitivity) IsValid() bool {
	switch s {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return true
	}
	return false
}

// tier holds the detection parameters behind a sensitivity setting.
type tier struct {
	delay     time.Duration
	threshold float64
}

var tiers = map[Sensitivity]tier{
	SensitivityLow:    {delay: 400 * time.Millisecond, threshold: 0.40},
	SensitivityMedium: {delay: 250 * time.Millisecond, threshold: 0.25},
	SensitivityHigh:   {delay: 50 * time.Millisecond, threshold: 0.15},
}

// Config is the user-mutable barge-in policy. It may be swapped at any time
// and takes effect on the next polling cycle; each cycle reads exactly one
// config version, so an update can never tear a half-applied threshold.
type Config struct {
	Enabled     bool
	Sensitivity Sensitivity
}

// defaultPollInterval is the energy sampling period. Short enough that
// detection delay, not polling, dominates reaction time.
const defaultPollInterval = 25 * time.Millisecond

// Option configures a Monitor during construction.
type Option func(*Monitor)

// WithPollInterval overrides the energy sampling period. Used in tests to
// keep detection-delay assertions fast and stable.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// Monitor polls microphone energy and fires a cancellation callback when
// sustained user speech is detected during remote playback.
//
// The monitor only evaluates energy while armed and enabled; Arm and Disarm
// are idempotent and safe to call from any goroutine.
type Monitor struct {
	level     audio.LevelReader
	onBargeIn func()
	interval  time.Duration

	cfg atomic.Pointer[Config]

	mu         sync.Mutex
	armed      bool
	fired      bool
	aboveSince time.Time // zero while energy is below threshold

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Monitor reading energy from level and invoking onBargeIn when
// a barge-in is detected. The polling goroutine starts immediately but stays
// passive until Arm. Call Close to stop it.
func New(level audio.LevelReader, cfg Config, onBargeIn func(), opts ...Option) (*Monitor, error) {
	if cfg.Sensitivity == "" {
		cfg.Sensitivity = SensitivityMedium
	}
	if !cfg.Sensitivity.IsValid() {
		return nil, fmt.Errorf("bargein: unknown sensitivity %q", cfg.Sensitivity)
	}

	m := &Monitor{
		level:     level,
		onBargeIn: onBargeIn,
		interval:  defaultPollInterval,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.cfg.Store(&cfg)

	go m.pollLoop()
	return m, nil
}

// SetConfig atomically replaces the barge-in policy. Takes effect on the
// next polling cycle. An invalid sensitivity is rejected.
func (m *Monitor) SetConfig(cfg Config) error {
	if cfg.Sensitivity == "" {
		cfg.Sensitivity = SensitivityMedium
	}
	if !cfg.Sensitivity.IsValid() {
		return fmt.Errorf("bargein: unknown sensitivity %q", cfg.Sensitivity)
	}
	m.cfg.Store(&cfg)
	return nil
}

// Arm starts evaluating microphone energy. Call when the remote party begins
// speaking. Arming an armed monitor is a no-op; each arm cycle can fire at
// most once.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		return
	}
	m.armed = true
	m.fired = false
	m.aboveSince = time.Time{}
}

// Disarm stops evaluating energy and resets the debounce state. Idempotent.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.armed = false
	m.aboveSince = time.Time{}
}

// Armed reports whether the monitor is currently evaluating energy.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Close stops the polling goroutine. Idempotent.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// pollLoop samples energy every interval until Close.
func (m *Monitor) pollLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.evaluate(now)
		}
	}
}

// evaluate runs one detection cycle against a single config version.
func (m *Monitor) evaluate(now time.Time) {
	cfg := m.cfg.Load()
	if !cfg.Enabled {
		return
	}
	t := tiers[cfg.Sensitivity]

	m.mu.Lock()
	if !m.armed || m.fired {
		m.mu.Unlock()
		return
	}

	if m.level.Level() < t.threshold {
		// Dropped below threshold before the delay elapsed: debounce reset.
		m.aboveSince = time.Time{}
		m.mu.Unlock()
		return
	}

	if m.aboveSince.IsZero() {
		m.aboveSince = now
		m.mu.Unlock()
		return
	}

	if now.Sub(m.aboveSince) < t.delay {
		m.mu.Unlock()
		return
	}

	// Sustained speech: fire exactly once, then disarm.
	m.fired = true
	m.armed = false
	m.aboveSince = time.Time{}
	fn := m.onBargeIn
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}
