// Package session owns the connection lifecycle to the realtime backend: the
// state machine, the controller that dials and tears down sessions, and the
// dispatch of interpreted inbound events to playback, transcripts and the
// barge-in monitor.
package session

import (
	"fmt"
	"sync"
)

// State is the connection lifecycle state. Only the state [Machine] may
// change it; every other component observes.
type State int

const (
	// StateIdle is the initial state before any connection attempt.
	StateIdle State = iota

	// StateConnecting covers credential fetch, transport dial and the wait
	// for the backend's ready event.
	StateConnecting

	// StateConnected means the backend has signalled readiness and audio may
	// flow. Socket-open alone never reaches this state.
	StateConnected

	// StateError is entered on transport failure or a failed connect. A new
	// attempt requires an explicit retry.
	StateError

	// StateDisconnected is the terminal state of a clean, user-initiated
	// close. Reconnectable via explicit retry.
	StateDisconnected
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// legalTransitions is the closed set of permitted lifecycle transitions.
// Retry paths (error/disconnected → connecting) are included; everything
// else is a programming error.
var legalTransitions = map[State][]State{
	StateIdle:         {StateConnecting},
	StateConnecting:   {StateConnected, StateError, StateDisconnected},
	StateConnected:    {StateError, StateDisconnected},
	StateError:        {StateConnecting, StateDisconnected},
	StateDisconnected: {StateConnecting},
}

// Machine is the single authority over the lifecycle state. Observers are
// notified synchronously, outside the machine's lock, in registration order.
type Machine struct {
	mu        sync.Mutex
	state     State
	lastErr   error
	observers []func(old, new State)
}

// NewMachine creates a Machine in [StateIdle].
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the error recorded with the most recent error transition, or
// nil. Cleared when a new connection attempt starts.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Observe registers fn to be called on every state change. Register before
// the first transition; registrations are never removed.
func (m *Machine) Observe(fn func(old, new State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// to transitions the machine to next, recording err (may be nil) as the
// session's last error. Illegal transitions are rejected so partial-teardown
// states cannot be reached by code paths racing each other.
func (m *Machine) to(next State, err error) error {
	m.mu.Lock()
	old := m.state

	if old == next {
		m.mu.Unlock()
		return nil
	}
	if !legal(old, next) {
		m.mu.Unlock()
		return fmt.Errorf("session: illegal transition %s → %s", old, next)
	}

	m.state = next
	switch next {
	case StateConnecting:
		m.lastErr = nil
	case StateError:
		m.lastErr = err
	}
	observers := m.observers
	m.mu.Unlock()

	for _, fn := range observers {
		fn(old, next)
	}
	return nil
}

func legal(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
