// Package realtime defines the wire-facing contract between voicelink and a
// remote realtime speech backend: connection credentials, turn configuration,
// the closed set of inbound events, and the [Provider] / [SessionHandle]
// interfaces implemented by backend adapter packages.
//
// The backend itself is opaque — voicelink only relies on the event protocol
// described here. The backend sub-package provides the websocket
// implementation; the mock sub-package provides test doubles.
package realtime

import "context"

// Credentials are the short-lived connection credentials handed out by an
// external credential service. They must be re-fetched for every connection
// attempt; caching a token across reconnects fails once it expires.
type Credentials struct {
	// Region selects the backend region. Ignored when Endpoint is set.
	Region string `json:"region"`

	// Endpoint is a full websocket URL overriding region-based routing.
	Endpoint string `json:"endpoint"`

	// Token is the short-lived bearer token.
	Token string `json:"token"`

	// Locale is the negotiated conversation locale (e.g. "en-US").
	Locale string `json:"locale"`
}

// CredentialProvider supplies fresh connection credentials. Implementations
// wrap whatever credential service the deployment uses; the session
// controller treats the result as opaque.
type CredentialProvider interface {
	// Fetch returns fresh credentials. Called once per connection attempt.
	Fetch(ctx context.Context) (Credentials, error)
}

// TurnDetectionMode selects how the end of a user utterance is determined.
type TurnDetectionMode string

const (
	// TurnDetectionServer lets the backend detect utterance boundaries from
	// the audio stream (server VAD).
	TurnDetectionServer TurnDetectionMode = "server_vad"

	// TurnDetectionManual disables automatic detection; the client signals
	// the end of each utterance explicitly via CommitInput.
	TurnDetectionManual TurnDetectionMode = "manual"
)

// IsValid reports whether m is a recognised turn detection mode.
func (m TurnDetectionMode) IsValid() bool {
	return m == TurnDetectionServer || m == TurnDetectionManual
}

// TurnConfig holds the user-mutable session parameters. Applying a new
// TurnConfig never tears down the session — it is sent as an in-band
// session.update control message.
type TurnConfig struct {
	// Voice is the backend voice identity for synthesized replies.
	Voice string

	// Mode selects automatic (server) or manual turn detection.
	Mode TurnDetectionMode

	// Threshold is the server VAD activation threshold in [0, 1].
	Threshold float64

	// SilenceDurationMs is the trailing silence, in milliseconds, that ends
	// a turn under server detection.
	SilenceDurationMs int
}

// SessionHandle is one live, authenticated connection to the backend.
//
// Audio and control writes are valid until Close; the Events channel is
// closed when the receive loop exits, after which Err reports the transport
// failure that ended the session (nil for a clean local close).
//
// Implementations must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio appends one frame of 16-bit LE mono PCM at the capture rate
	// to the backend's input buffer.
	SendAudio(pcm []byte) error

	// UpdateTurnConfig applies cfg in-band without reconnecting.
	UpdateTurnConfig(cfg TurnConfig) error

	// CommitInput marks the end of the current utterance. Only meaningful
	// under manual turn detection.
	CommitInput() error

	// Events returns the stream of interpreted inbound events, delivered
	// strictly in arrival order.
	Events() <-chan InboundEvent

	// Err returns the transport error that terminated the session, or nil.
	Err() error

	// Close terminates the session and releases the transport. Idempotent.
	Close() error
}

// Provider dials new backend sessions.
type Provider interface {
	// Connect opens a session using creds and applies the initial turn
	// configuration. The returned handle is live but the session is only
	// ready to accept audio once a ready event arrives on Events.
	Connect(ctx context.Context, creds Credentials, cfg TurnConfig) (SessionHandle, error)
}
