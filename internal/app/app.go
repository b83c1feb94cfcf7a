// Package app wires all voicelink subsystems into a running client.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the ops endpoint until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithCredentialProvider, WithRealtimeProvider, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/godt333/voicelink/internal/bargein"
	"github.com/godt333/voicelink/internal/capture"
	"github.com/godt333/voicelink/internal/config"
	"github.com/godt333/voicelink/internal/credentials"
	"github.com/godt333/voicelink/internal/health"
	"github.com/godt333/voicelink/internal/observe"
	"github.com/godt333/voicelink/internal/playback"
	"github.com/godt333/voicelink/internal/session"
	"github.com/godt333/voicelink/internal/transcript"
	"github.com/godt333/voicelink/pkg/audio"
	"github.com/godt333/voicelink/pkg/realtime"
	"github.com/godt333/voicelink/pkg/realtime/backend"
)

// shutdownTimeout bounds the ops server drain during Shutdown.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and exposes the operations the UI layer
// drives: connect, capture toggle, turn configuration and transcripts.
type App struct {
	cfg *config.Config

	credProv realtime.CredentialProvider
	rtProv   realtime.Provider
	device   audio.CaptureDevice
	sink     audio.PlaybackSink

	metrics *observe.Metrics
	sched   *playback.Scheduler
	tb      *transcript.Builder
	monitor *bargein.Monitor
	pipe    *capture.Pipeline
	ctrl    *session.Controller

	httpServer *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCredentialProvider injects a credential provider instead of the HTTP
// client built from config.
func WithCredentialProvider(p realtime.CredentialProvider) Option {
	return func(a *App) { a.credProv = p }
}

// WithRealtimeProvider injects a realtime provider instead of the websocket
// backend.
func WithRealtimeProvider(p realtime.Provider) Option {
	return func(a *App) { a.rtProv = p }
}

// WithCaptureDevice injects the microphone device. Required: the embedding
// platform owns the hardware.
func WithCaptureDevice(d audio.CaptureDevice) Option {
	return func(a *App) { a.device = d }
}

// WithPlaybackSink injects the playback device. Required: the embedding
// platform owns the hardware.
func WithPlaybackSink(s audio.PlaybackSink) Option {
	return func(a *App) { a.sink = s }
}

// New creates an App by wiring all subsystems together. Audio devices must be
// injected; everything else is built from cfg unless overridden by options.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.device == nil {
		return nil, errors.New("app: a capture device is required")
	}
	if a.sink == nil {
		return nil, errors.New("app: a playback sink is required")
	}

	var err error
	if a.metrics, err = observe.NewMetrics(otel.GetMeterProvider()); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	if a.credProv == nil {
		client, err := credentials.NewClient(cfg.Credentials.Endpoint, cfg.Credentials.APIKey)
		if err != nil {
			return nil, fmt.Errorf("app: init credential client: %w", err)
		}
		a.credProv = client
	}
	if a.rtProv == nil {
		a.rtProv = backend.New(backend.WithDecodeErrorHook(func(error) {
			a.metrics.DecodeFailures.Add(context.Background(), 1)
		}))
	}

	a.sched = playback.New(a.sink, cfg.Audio.PlaybackRate)
	a.closers = append(a.closers, a.sched.Close)
	if err := a.metrics.RegisterQueueDepth(func() int64 { return int64(a.sched.Pending()) }); err != nil {
		return nil, fmt.Errorf("app: register queue depth gauge: %w", err)
	}

	a.tb = transcript.NewBuilder()
	a.closers = append(a.closers, func() error { a.tb.Close(); return nil })

	// Capture feeds both the outbound frame path and the mic energy level the
	// monitor polls.
	a.pipe = capture.New(a.device, capture.Config{
		SampleRate:    cfg.Audio.CaptureRate,
		FrameDuration: cfg.Audio.FrameDuration,
	}, func(f audio.Frame) { a.ctrl.SendFrame(f) }, func() bool {
		return a.ctrl.State() == session.StateConnected
	})

	a.monitor, err = bargein.New(a.pipe, bargein.Config{
		Enabled:     cfg.BargeIn.Enabled,
		Sensitivity: cfg.BargeIn.Sensitivity,
	}, func() { a.ctrl.LocalBargeIn() })
	if err != nil {
		return nil, fmt.Errorf("app: init barge-in monitor: %w", err)
	}
	a.closers = append(a.closers, a.monitor.Close)

	a.ctrl, err = session.NewController(session.Deps{
		Credentials: a.credProv,
		Provider:    a.rtProv,
		Playback:    a.sched,
		Transcripts: a.tb,
		Monitor:     a.monitor,
		Metrics:     a.metrics,
	}, cfg.RealtimeTurnConfig())
	if err != nil {
		return nil, fmt.Errorf("app: init session controller: %w", err)
	}
	a.closers = append(a.closers, a.ctrl.Close)

	// The remote party falling silent disarms the monitor without an
	// interruption.
	a.sched.SetOnDrained(a.monitor.Disarm)

	a.ctrl.Observe(func(old, next session.State) {
		slog.Info("session state changed", "from", old, "to", next)
	})

	a.httpServer = a.buildOpsServer()

	return a, nil
}

// buildOpsServer assembles the health and metrics endpoint.
func (a *App) buildOpsServer() *http.Server {
	mux := http.NewServeMux()
	health.New().Add("session", health.SessionProbe(a.ctrl.State)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Connect establishes the realtime session.
func (a *App) Connect(ctx context.Context) error { return a.ctrl.Connect(ctx) }

// Retry tears down the previous session completely and reconnects.
func (a *App) Retry(ctx context.Context) error { return a.ctrl.Retry(ctx) }

// Disconnect cleanly closes the realtime session.
func (a *App) Disconnect() error { return a.ctrl.Disconnect() }

// State returns the session lifecycle state.
func (a *App) State() session.State { return a.ctrl.State() }

// StartCapture acquires the microphone and begins streaming to the backend.
func (a *App) StartCapture(ctx context.Context) error { return a.pipe.Start(ctx) }

// StopCapture releases the microphone.
func (a *App) StopCapture() error { return a.pipe.Stop() }

// Capturing reports whether the microphone is held.
func (a *App) Capturing() bool { return a.pipe.Running() }

// CommitInput ends the current utterance under manual turn detection.
func (a *App) CommitInput() error { return a.ctrl.CommitInput() }

// UpdateTurnConfig applies new turn parameters in-band.
func (a *App) UpdateTurnConfig(cfg realtime.TurnConfig) error {
	return a.ctrl.UpdateTurnConfig(cfg)
}

// SetBargeIn swaps the barge-in policy at runtime.
func (a *App) SetBargeIn(cfg bargein.Config) error { return a.monitor.SetConfig(cfg) }

// Transcripts returns the stream of finalized transcript entries.
func (a *App) Transcripts() <-chan transcript.Entry { return a.tb.Entries() }

// Run serves the ops endpoint until ctx is cancelled, then drains it. The
// realtime session itself is driven by the UI layer through Connect and
// friends; Run only keeps the process observable.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ops endpoint listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(drainCtx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order: microphone first so no frame
// is produced mid-teardown, then the session, then everything else.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if err := a.pipe.Stop(); err != nil {
			slog.Warn("capture stop error", "err", err)
		}
		if err := a.ctrl.Disconnect(); err != nil {
			slog.Debug("disconnect during shutdown", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
