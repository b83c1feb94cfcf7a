package realtime

// EventKind classifies an inbound backend event. The set is closed: messages
// that do not map to one of these kinds are logged and dropped by the
// interpreter so that new backend event types cannot break older clients.
type EventKind int

const (
	// EventSessionReady is the backend's signal that the session can accept
	// audio. Socket-open alone never implies readiness — the backend may
	// accept the transport before it can process input.
	EventSessionReady EventKind = iota

	// EventSessionUpdated acknowledges an in-band turn configuration update.
	EventSessionUpdated

	// EventSpeechStarted is the server-asserted start of user speech. It is
	// the authoritative interruption signal: local playback must be cut off
	// before the next event is processed.
	EventSpeechStarted

	// EventSpeechStopped is the server-asserted end of user speech.
	EventSpeechStopped

	// EventInputTranscript carries the completed transcription of a user
	// utterance.
	EventInputTranscript

	// EventTranscriptDelta carries an incremental piece of the assistant's
	// reply transcript for the current turn.
	EventTranscriptDelta

	// EventTranscriptDone finalizes the assistant transcript for the turn.
	EventTranscriptDone

	// EventAudioDelta carries one decoded chunk of synthesized PCM for the
	// current turn.
	EventAudioDelta

	// EventAudioDone marks the end of audio streaming for the turn; the
	// playback queue drains naturally.
	EventAudioDone

	// EventTurnDone marks the end of the backend's turn.
	EventTurnDone

	// EventError surfaces a backend protocol error. It does not by itself
	// terminate the session.
	EventError
)

// String returns the protocol-ish name of the event kind, for logs.
func (k EventKind) String() string {
	switch k {
	case EventSessionReady:
		return "session.ready"
	case EventSessionUpdated:
		return "session.updated"
	case EventSpeechStarted:
		return "speech.started"
	case EventSpeechStopped:
		return "speech.stopped"
	case EventInputTranscript:
		return "input.transcript"
	case EventTranscriptDelta:
		return "transcript.delta"
	case EventTranscriptDone:
		return "transcript.done"
	case EventAudioDelta:
		return "audio.delta"
	case EventAudioDone:
		return "audio.done"
	case EventTurnDone:
		return "turn.done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// InboundEvent is one interpreted backend message. Events are transient:
// consumed once by the session controller and discarded.
type InboundEvent struct {
	// Kind tags which variant this event is.
	Kind EventKind

	// Text holds transcript payloads for EventInputTranscript,
	// EventTranscriptDelta and EventTranscriptDone.
	Text string

	// PCM holds decoded 16-bit LE mono samples for EventAudioDelta.
	PCM []byte

	// Message holds the human-readable error for EventError.
	Message string
}
