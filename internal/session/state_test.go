package session

import (
	"errors"
	"testing"
)

func TestMachine_StartsIdle(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	if got := m.State(); got != StateIdle {
		t.Errorf("initial state = %v, want idle", got)
	}
	if m.Err() != nil {
		t.Errorf("initial Err = %v, want nil", m.Err())
	}
}

func TestMachine_LegalPath(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	steps := []State{StateConnecting, StateConnected, StateDisconnected, StateConnecting, StateError}
	for _, next := range steps {
		if err := m.to(next, nil); err != nil {
			t.Fatalf("to(%v): %v", next, err)
		}
	}
	if got := m.State(); got != StateError {
		t.Errorf("state = %v, want error", got)
	}
}

func TestMachine_RejectsIllegalTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path []State
		next State
	}{
		{"idle to connected", nil, StateConnected},
		{"idle to disconnected", nil, StateDisconnected},
		{"connected to connecting", []State{StateConnecting, StateConnected}, StateConnecting},
		{"disconnected to error", []State{StateConnecting, StateDisconnected}, StateError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := NewMachine()
			for _, s := range tc.path {
				if err := m.to(s, nil); err != nil {
					t.Fatalf("setup to(%v): %v", s, err)
				}
			}
			before := m.State()
			if err := m.to(tc.next, nil); err == nil {
				t.Fatalf("to(%v) from %v succeeded, want rejection", tc.next, before)
			}
			if got := m.State(); got != before {
				t.Errorf("state changed to %v on rejected transition", got)
			}
		})
	}
}

func TestMachine_SameStateIsNoOp(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	var calls int
	m.Observe(func(_, _ State) { calls++ })

	if err := m.to(StateConnecting, nil); err != nil {
		t.Fatalf("to(connecting): %v", err)
	}
	if err := m.to(StateConnecting, nil); err != nil {
		t.Fatalf("repeat to(connecting): %v", err)
	}
	if calls != 1 {
		t.Errorf("observer calls = %d, want 1", calls)
	}
}

func TestMachine_ErrRecordedAndCleared(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	boom := errors.New("dial tcp: refused")

	if err := m.to(StateConnecting, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.to(StateError, boom); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err = %v, want recorded error", m.Err())
	}

	if err := m.to(StateConnecting, nil); err != nil {
		t.Fatal(err)
	}
	if m.Err() != nil {
		t.Errorf("Err = %v after new attempt, want nil", m.Err())
	}
}

func TestMachine_ObserversSeeOldAndNew(t *testing.T) {
	t.Parallel()

	m := NewMachine()
	type change struct{ old, new State }
	var seen []change
	m.Observe(func(old, new State) { seen = append(seen, change{old, new}) })

	_ = m.to(StateConnecting, nil)
	_ = m.to(StateConnected, nil)

	want := []change{
		{StateIdle, StateConnecting},
		{StateConnecting, StateConnected},
	}
	if len(seen) != len(want) {
		t.Fatalf("observed %d changes, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("change %d = %+v, want %+v", i, seen[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	names := map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateError:        "error",
		StateDisconnected: "disconnected",
		State(99):         "unknown",
	}
	for s, want := range names {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
