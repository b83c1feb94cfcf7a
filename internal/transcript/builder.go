// Package transcript accumulates streamed transcript deltas into finalized
// per-turn entries for UI-layer consumers.
package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one finalized transcript line.
type Entry struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// defaultBuf is the buffer depth of the entries channel.
const defaultBuf = 64

// Builder accumulates assistant transcript deltas for the current turn and
// emits finalized entries. User transcriptions arrive whole and are emitted
// directly. Safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	partial strings.Builder
	entries chan Entry
	closed  bool
}

// NewBuilder creates a Builder with the default entry buffer.
func NewBuilder() *Builder {
	return &Builder{entries: make(chan Entry, defaultBuf)}
}

// AppendDelta adds one incremental piece of the assistant's in-progress
// transcript.
func (b *Builder) AppendDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partial.WriteString(delta)
}

// FinishAssistant finalizes the assistant transcript for the turn. When the
// backend supplies the full text on the done event it wins; otherwise the
// accumulated deltas are used.
func (b *Builder) FinishAssistant(full string) {
	b.mu.Lock()
	text := full
	if text == "" {
		text = b.partial.String()
	}
	b.partial.Reset()
	b.mu.Unlock()

	if text == "" {
		return
	}
	b.emit(Entry{Role: RoleAssistant, Text: text, Timestamp: time.Now()})
}

// AddUser emits a completed user utterance transcription.
func (b *Builder) AddUser(text string) {
	if text == "" {
		return
	}
	b.emit(Entry{Role: RoleUser, Text: text, Timestamp: time.Now()})
}

// Reset discards any accumulated partial transcript, e.g. after a barge-in
// cuts a turn short.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partial.Reset()
}

// Entries returns the stream of finalized entries. Closed by Close.
func (b *Builder) Entries() <-chan Entry { return b.entries }

// Close closes the entries channel. Idempotent.
func (b *Builder) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.entries)
}

// emit delivers e without blocking the event path; a slow consumer loses
// entries rather than stalling audio handling.
func (b *Builder) emit(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.entries <- e:
	default:
		slog.Warn("transcript: consumer too slow, dropping entry", "role", e.Role)
	}
}
