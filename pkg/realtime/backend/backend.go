// Package backend implements the realtime.Provider interface over a
// bidirectional WebSocket connection to the remote speech backend.
//
// The channel carries JSON control/event messages as text frames and audio as
// either base64-encoded PCM16 inside JSON events or raw binary frames,
// depending on what the backend negotiates. Inbound messages are interpreted
// into the closed realtime.InboundEvent set in strict arrival order;
// unrecognised event types are logged at debug level and dropped so newer
// backends stay compatible with older clients.
package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/godt333/voicelink/pkg/realtime"
)

// Compile-time assertions that Provider and session satisfy the realtime
// interfaces.
var (
	_ realtime.Provider      = (*Provider)(nil)
	_ realtime.SessionHandle = (*session)(nil)
)

const (
	// defaultRegionURL is the websocket endpoint pattern used when the
	// credential service returns a region instead of a full endpoint.
	defaultRegionURL = "wss://%s.voice.godt.dev/v1/realtime"

	// defaultEventBuf is the buffer depth of the interpreted event channel.
	// Deep enough to absorb a burst of audio deltas without stalling the
	// websocket read loop.
	defaultEventBuf = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithRegionURL overrides the region-based endpoint pattern. The pattern must
// contain one %s verb for the region.
func WithRegionURL(pattern string) Option {
	return func(p *Provider) { p.regionURL = pattern }
}

// WithEventBuffer sets the buffer depth of the event channel returned by
// SessionHandle.Events. The default is 64.
func WithEventBuffer(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.eventBuf = n
		}
	}
}

// WithDecodeErrorHook registers a callback invoked whenever an inbound audio
// payload fails to decode. The offending chunk is dropped either way; the
// hook exists so callers can count failures.
func WithDecodeErrorHook(hook func(error)) Option {
	return func(p *Provider) { p.decodeErrHook = hook }
}

// Provider dials realtime sessions over websocket.
type Provider struct {
	regionURL     string
	eventBuf      int
	decodeErrHook func(error)
}

// New creates a websocket backend provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		regionURL: defaultRegionURL,
		eventBuf:  defaultEventBuf,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect opens the websocket channel using creds and sends the initial
// session.update derived from cfg. The session is live on return but only
// ready once an EventSessionReady arrives on Events.
func (p *Provider) Connect(ctx context.Context, creds realtime.Credentials, cfg realtime.TurnConfig) (realtime.SessionHandle, error) {
	wsURL, err := sessionURL(p.regionURL, creds)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + creds.Token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backend: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:          conn,
		events:        make(chan realtime.InboundEvent, p.eventBuf),
		decodeErrHook: p.decodeErrHook,
		ctx:           sessCtx,
		cancel:        sessCancel,
	}

	if err := sess.UpdateTurnConfig(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("backend: initial session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// sessionURL resolves the websocket URL from credentials: an explicit
// endpoint wins, otherwise the region is substituted into the pattern. The
// negotiated locale rides along as a query parameter.
func sessionURL(pattern string, creds realtime.Credentials) (string, error) {
	raw := creds.Endpoint
	if raw == "" {
		if creds.Region == "" {
			return "", fmt.Errorf("credentials carry neither endpoint nor region")
		}
		raw = fmt.Sprintf(pattern, creds.Region)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if creds.Locale != "" {
		q := u.Query()
		q.Set("locale", creds.Locale)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string               `json:"voice,omitempty"`
	InputAudioFormat  string               `json:"input_audio_format"`
	OutputAudioFormat string               `json:"output_audio_format"`
	TurnDetection     *turnDetectionParams `json:"turn_detection"`
}

type turnDetectionParams struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

// serverErrorDetail is the nested error object in a backend error event:
// {"type":"error","error":{"code":"...","message":"..."}}.
type serverErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed and
	// response.audio_transcript.done (full text)
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn          *websocket.Conn
	events        chan realtime.InboundEvent
	decodeErrHook func(error)

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("backend: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads raw messages from the websocket and interprets them into
// InboundEvents, preserving arrival order. It owns the events channel and
// closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeOnce.Do(func() { close(s.events) })

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return // local close, not a transport failure
			}
			s.setErr(err)
			return
		}

		// Raw binary frames are audio deltas on channels that negotiated
		// binary transport.
		if typ == websocket.MessageBinary {
			if len(data) == 0 {
				continue
			}
			s.emit(realtime.InboundEvent{Kind: realtime.EventAudioDelta, PCM: data})
			continue
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("backend: undecodable message, dropping", "err", err)
			continue
		}

		s.interpret(&evt)
	}
}

// interpret classifies one server event into exactly one InboundEvent kind
// and emits it. Unknown kinds are logged and dropped.
func (s *session) interpret(evt *serverEvent) {
	switch evt.Type {
	case "session.created":
		s.emit(realtime.InboundEvent{Kind: realtime.EventSessionReady})

	case "session.updated":
		s.emit(realtime.InboundEvent{Kind: realtime.EventSessionUpdated})

	case "input_audio_buffer.speech_started":
		s.emit(realtime.InboundEvent{Kind: realtime.EventSpeechStarted})

	case "input_audio_buffer.speech_stopped":
		s.emit(realtime.InboundEvent{Kind: realtime.EventSpeechStopped})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(realtime.InboundEvent{Kind: realtime.EventInputTranscript, Text: evt.Transcript})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(realtime.InboundEvent{Kind: realtime.EventTranscriptDelta, Text: evt.Delta})

	case "response.audio_transcript.done":
		s.emit(realtime.InboundEvent{Kind: realtime.EventTranscriptDone, Text: evt.Transcript})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(pcm) == 0 {
			// A single bad chunk must not stall the stream.
			slog.Warn("backend: dropping undecodable audio delta", "err", err)
			if s.decodeErrHook != nil && err != nil {
				s.decodeErrHook(err)
			}
			return
		}
		s.emit(realtime.InboundEvent{Kind: realtime.EventAudioDelta, PCM: pcm})

	case "response.audio.done":
		s.emit(realtime.InboundEvent{Kind: realtime.EventAudioDone})

	case "response.done":
		s.emit(realtime.InboundEvent{Kind: realtime.EventTurnDone})

	case "error":
		msg := "unknown backend error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(realtime.InboundEvent{Kind: realtime.EventError, Message: msg})

	default:
		slog.Debug("backend: unrecognised event type, dropping", "type", evt.Type)
	}
}

// emit delivers e on the events channel unless the session is shutting down.
func (s *session) emit(e realtime.InboundEvent) {
	select {
	case s.events <- e:
	case <-s.ctx.Done():
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio appends one frame of PCM16 to the backend's input buffer.
func (s *session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("backend: session closed")
	}
	s.mu.Unlock()

	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// UpdateTurnConfig applies cfg via a session.update control message. The
// channel is never reconnected for a configuration change.
func (s *session) UpdateTurnConfig(cfg realtime.TurnConfig) error {
	params := sessionParams{
		Voice:             cfg.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	// Manual mode is expressed as a null turn_detection block; the backend
	// then waits for explicit commits.
	if cfg.Mode != realtime.TurnDetectionManual {
		params.TurnDetection = &turnDetectionParams{
			Type:              string(realtime.TurnDetectionServer),
			Threshold:         cfg.Threshold,
			SilenceDurationMs: cfg.SilenceDurationMs,
		}
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// CommitInput signals the end of the current utterance under manual turn
// detection.
func (s *session) CommitInput() error {
	return s.writeJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// Events returns the interpreted inbound event stream.
func (s *session) Events() <-chan realtime.InboundEvent { return s.events }

// Err returns the transport error that terminated the session, or nil.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases the transport. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
