package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/godt333/voicelink/internal/observe"
	"github.com/godt333/voicelink/internal/playback"
	"github.com/godt333/voicelink/internal/transcript"
	"github.com/godt333/voicelink/pkg/audio"
	"github.com/godt333/voicelink/pkg/realtime"
)

// ArmDisarmer is the slice of the barge-in monitor the controller drives:
// arm when the remote party starts speaking, disarm on interruption.
type ArmDisarmer interface {
	Arm()
	Disarm()
}

// defaultReadyTimeout bounds the wait for the backend's ready event after the
// transport dial succeeds.
const defaultReadyTimeout = 10 * time.Second

// Option configures a Controller during construction.
type Option func(*Controller)

// WithReadyTimeout overrides how long Connect waits for the backend's ready
// event before giving up.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.readyTimeout = d
		}
	}
}

// Deps are the collaborators a Controller wires together.
type Deps struct {
	Credentials realtime.CredentialProvider
	Provider    realtime.Provider
	Playback    *playback.Scheduler
	Transcripts *transcript.Builder
	Monitor     ArmDisarmer
	Metrics     *observe.Metrics
}

// Controller owns the session lifecycle: it dials the backend with freshly
// fetched credentials, promotes the state machine only on the backend's ready
// event, dispatches inbound events to playback and transcripts, and tears the
// whole session down as a unit so no half-connected state survives a retry.
//
// All methods are safe for concurrent use.
type Controller struct {
	machine      *Machine
	creds        realtime.CredentialProvider
	provider     realtime.Provider
	sched        *playback.Scheduler
	transcripts  *transcript.Builder
	monitor      ArmDisarmer
	metrics      *observe.Metrics
	readyTimeout time.Duration

	// connectMu serializes Connect, Retry and the teardown entry points so
	// two racing connects cannot both dial and strand a live session.
	connectMu sync.Mutex

	mu          sync.Mutex
	handle      realtime.SessionHandle
	id          uuid.UUID
	turnCfg     realtime.TurnConfig
	turnActive  bool // audio for the current remote turn has started
	interrupted bool // current remote turn has been cut off
	active      bool // counted in the active-sessions gauge

	loopWG sync.WaitGroup
}

// NewController creates a Controller in the idle state. cfg is the initial
// turn configuration applied on every connect.
func NewController(deps Deps, cfg realtime.TurnConfig, opts ...Option) (*Controller, error) {
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("session: unknown turn detection mode %q", cfg.Mode)
	}
	c := &Controller{
		machine:      NewMachine(),
		creds:        deps.Credentials,
		provider:     deps.Provider,
		sched:        deps.Playback,
		transcripts:  deps.Transcripts,
		monitor:      deps.Monitor,
		metrics:      deps.Metrics,
		readyTimeout: defaultReadyTimeout,
		turnCfg:      cfg,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.machine.State() }

// Err returns the error recorded with the most recent failed connection, or
// nil.
func (c *Controller) Err() error { return c.machine.Err() }

// Observe registers fn on the underlying state machine.
func (c *Controller) Observe(fn func(old, new State)) { c.machine.Observe(fn) }

// SessionID returns the identity of the current (or most recent) session.
func (c *Controller) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Connect establishes a session: tear down whatever is left of a previous
// attempt, fetch fresh credentials, dial, and wait for the backend's ready
// event. The state machine only reaches connected once readiness is
// signalled; a dial that never produces the ready event fails.
//
// Concurrent calls are serialized. Only one attempt dials at a time; a call
// that finds the controller already connected fails the connecting
// transition instead of dialing a second transport.
func (c *Controller) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.connect(ctx)
}

func (c *Controller) connect(ctx context.Context) error {
	if err := c.machine.to(StateConnecting, nil); err != nil {
		return err
	}
	c.teardown()

	start := time.Now()
	creds, err := c.creds.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("session: fetch credentials: %w", err)
		_ = c.machine.to(StateError, err)
		return err
	}

	c.mu.Lock()
	cfg := c.turnCfg
	c.mu.Unlock()

	handle, err := c.provider.Connect(ctx, creds, cfg)
	if err != nil {
		err = fmt.Errorf("session: connect: %w", err)
		_ = c.machine.to(StateError, err)
		return err
	}

	if err := c.awaitReady(ctx, handle); err != nil {
		_ = handle.Close()
		_ = c.machine.to(StateError, err)
		return err
	}

	id := uuid.New()
	c.mu.Lock()
	c.handle = handle
	c.id = id
	c.turnActive = false
	c.interrupted = false
	c.active = true
	c.mu.Unlock()

	if err := c.machine.to(StateConnected, nil); err != nil {
		c.teardown()
		return err
	}

	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds())
	c.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session: connected", "session_id", id, "region", creds.Region, "locale", creds.Locale)

	c.loopWG.Add(1)
	go c.eventLoop(handle)
	return nil
}

// Retry performs a full teardown of the previous session and starts a new
// connection attempt. Safe to call however the previous attempt ended;
// teardown is idempotent, so nothing from the failed session can leak into
// the new one.
func (c *Controller) Retry(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.teardown()
	// A still-connected machine must pass through disconnected before the new
	// attempt; from idle or error the transition is simply not needed.
	_ = c.machine.to(StateDisconnected, nil)
	return c.connect(ctx)
}

// Disconnect cleanly tears the session down. Idempotent.
func (c *Controller) Disconnect() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.teardown()
	return c.machine.to(StateDisconnected, nil)
}

// SendFrame forwards one captured audio frame to the backend. Frames arriving
// while the session is not connected are counted and dropped rather than
// buffered; stale audio from before a reconnect must never reach the new
// session.
func (c *Controller) SendFrame(f audio.Frame) {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()

	if handle == nil || c.machine.State() != StateConnected {
		c.metrics.FramesDropped.Add(context.Background(), 1)
		return
	}
	if err := handle.SendAudio(f.PCM); err != nil {
		slog.Warn("session: send frame", "err", err)
		return
	}
	c.metrics.FramesSent.Add(context.Background(), 1)
}

// UpdateTurnConfig applies cfg in-band without reconnecting and remembers it
// for subsequent connects.
func (c *Controller) UpdateTurnConfig(cfg realtime.TurnConfig) error {
	if !cfg.Mode.IsValid() {
		return fmt.Errorf("session: unknown turn detection mode %q", cfg.Mode)
	}

	c.mu.Lock()
	c.turnCfg = cfg
	handle := c.handle
	c.mu.Unlock()

	if handle == nil || c.machine.State() != StateConnected {
		return nil
	}
	return handle.UpdateTurnConfig(cfg)
}

// CommitInput marks the end of the current utterance under manual turn
// detection.
func (c *Controller) CommitInput() error {
	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()

	if handle == nil || c.machine.State() != StateConnected {
		return errors.New("session: not connected")
	}
	return handle.CommitInput()
}

// LocalBargeIn cuts off playback because the local monitor detected the user
// speaking over the remote party. The server's own speech-started signal
// takes the same path, so whichever arrives first wins and the second is a
// no-op.
func (c *Controller) LocalBargeIn() {
	c.interrupt(observe.OriginLocal)
}

// Close releases everything the controller owns. Idempotent.
func (c *Controller) Close() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.teardown()
	return nil
}

// awaitReady consumes events from handle until the backend signals readiness.
func (c *Controller) awaitReady(ctx context.Context, handle realtime.SessionHandle) error {
	timer := time.NewTimer(c.readyTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("session: awaiting ready: %w", ctx.Err())
		case <-timer.C:
			return fmt.Errorf("session: no ready event within %s", c.readyTimeout)
		case ev, ok := <-handle.Events():
			if !ok {
				if err := handle.Err(); err != nil {
					return fmt.Errorf("session: transport failed before ready: %w", err)
				}
				return errors.New("session: closed before ready")
			}
			if ev.Kind == realtime.EventSessionReady {
				return nil
			}
			slog.Debug("session: event before ready", "kind", ev.Kind)
		}
	}
}

// eventLoop dispatches interpreted backend events until the session's event
// stream closes.
func (c *Controller) eventLoop(handle realtime.SessionHandle) {
	defer c.loopWG.Done()

	for ev := range handle.Events() {
		c.dispatch(ev)
	}

	// Stream closed. A transport failure moves the machine to error and
	// releases the session's local resources; a clean local close has already
	// been handled by teardown.
	if err := handle.Err(); err != nil {
		slog.Error("session: transport failed", "err", err)
		c.releaseLocal()
		_ = c.machine.to(StateError, err)
	}
}

// dispatch handles one inbound event.
func (c *Controller) dispatch(ev realtime.InboundEvent) {
	switch ev.Kind {
	case realtime.EventSpeechStarted:
		// The server's word is final: playback must stop before anything else
		// is processed.
		c.interrupt(observe.OriginServer)

	case realtime.EventSpeechStopped:
		slog.Debug("session: user speech stopped")

	case realtime.EventInputTranscript:
		c.transcripts.AddUser(ev.Text)

	case realtime.EventTranscriptDelta:
		if !c.turnInterrupted() {
			c.transcripts.AppendDelta(ev.Text)
		}

	case realtime.EventTranscriptDone:
		if !c.turnInterrupted() {
			c.transcripts.FinishAssistant(ev.Text)
		}

	case realtime.EventAudioDelta:
		c.handleAudioDelta(ev.PCM)

	case realtime.EventAudioDone:
		slog.Debug("session: remote audio stream complete")

	case realtime.EventTurnDone:
		c.mu.Lock()
		c.turnActive = false
		c.interrupted = false
		c.mu.Unlock()

	case realtime.EventError:
		c.metrics.ProtocolErrors.Add(context.Background(), 1)
		slog.Warn("session: backend error event", "message", ev.Message)

	case realtime.EventSessionReady, realtime.EventSessionUpdated:
		slog.Debug("session: control event", "kind", ev.Kind)
	}
}

// handleAudioDelta schedules one chunk of synthesized audio. The first chunk
// of a turn arms the barge-in monitor; chunks from an interrupted turn are
// discarded so late stragglers cannot resume cancelled playback.
func (c *Controller) handleAudioDelta(pcm []byte) {
	c.mu.Lock()
	if c.interrupted {
		c.mu.Unlock()
		return
	}
	first := !c.turnActive
	c.turnActive = true
	c.mu.Unlock()

	if first && c.monitor != nil {
		c.monitor.Arm()
	}
	if err := c.sched.Submit(pcm); err != nil {
		slog.Warn("session: schedule audio chunk", "err", err)
		return
	}
	c.metrics.ChunksScheduled.Add(context.Background(), 1)
}

// turnInterrupted reports whether the current remote turn has been cut off.
func (c *Controller) turnInterrupted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}

// interrupt cuts off remote playback: flush the queue, disarm the monitor
// and discard the partial transcript. Server and local detections share this
// one path. Within a live turn only the first call has any effect; after the
// turn completes, a barge-in must still flush the queued tail that has not
// played out yet.
func (c *Controller) interrupt(origin string) {
	c.mu.Lock()
	if c.interrupted || (!c.turnActive && c.sched.Pending() == 0) {
		c.mu.Unlock()
		return
	}
	// The flag dedupes within a turn; once the turn is over the empty queue
	// makes further calls a no-op, so the flag must not carry into the next
	// turn's audio.
	if c.turnActive {
		c.interrupted = true
	}
	c.mu.Unlock()

	if err := c.sched.Flush(); err != nil {
		slog.Warn("session: flush playback", "err", err)
	}
	if c.monitor != nil {
		c.monitor.Disarm()
	}
	c.transcripts.Reset()

	ctx := context.Background()
	c.metrics.Flushes.Add(ctx, 1)
	c.metrics.BargeIns.Add(ctx, 1, observe.Origin(origin))
	slog.Info("session: playback interrupted", "origin", origin)
}

// releaseLocal returns every session-scoped resource to its ground state:
// playback queue flushed, monitor disarmed, partial transcript dropped and
// the active-session gauge decremented. Idempotent.
func (c *Controller) releaseLocal() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.turnActive = false
	c.interrupted = false
	c.mu.Unlock()

	_ = c.sched.Flush()
	if c.monitor != nil {
		c.monitor.Disarm()
	}
	c.transcripts.Reset()

	if wasActive {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// teardown closes the transport, waits for the event loop to exit and
// releases all session-scoped local resources. Every piece is idempotent, so
// a retry after a half-failed connect cannot leave partial state behind.
func (c *Controller) teardown() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
	c.loopWG.Wait()
	c.releaseLocal()
}
