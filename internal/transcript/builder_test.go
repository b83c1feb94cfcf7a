package transcript_test

import (
	"testing"
	"time"

	"github.com/godt333/voicelink/internal/transcript"
)

func next(t *testing.T, b *transcript.Builder) transcript.Entry {
	t.Helper()
	select {
	case e := <-b.Entries():
		return e
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for entry")
		return transcript.Entry{}
	}
}

func TestDeltas_AccumulateUntilFinish(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.AppendDelta("Hello, ")
	b.AppendDelta("traveler")
	b.AppendDelta("!")
	b.FinishAssistant("")

	e := next(t, b)
	if e.Role != transcript.RoleAssistant {
		t.Errorf("role = %q, want assistant", e.Role)
	}
	if e.Text != "Hello, traveler!" {
		t.Errorf("text = %q", e.Text)
	}
}

func TestFinish_FullTextWinsOverDeltas(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.AppendDelta("partial gar")
	b.FinishAssistant("The complete sentence.")

	if e := next(t, b); e.Text != "The complete sentence." {
		t.Errorf("text = %q, want the full done payload", e.Text)
	}
}

func TestFinish_EmptyTurnEmitsNothing(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.FinishAssistant("")
	select {
	case e := <-b.Entries():
		t.Fatalf("unexpected entry %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddUser_EmitsDirectly(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.AddUser("what's the weather")
	e := next(t, b)
	if e.Role != transcript.RoleUser || e.Text != "what's the weather" {
		t.Errorf("entry = %+v", e)
	}
}

func TestReset_DiscardsPartial(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.AppendDelta("interrupted mid-sen")
	b.Reset()
	b.FinishAssistant("")

	select {
	case e := <-b.Entries():
		t.Fatalf("unexpected entry after reset: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTurnsAreIndependent(t *testing.T) {
	t.Parallel()

	b := transcript.NewBuilder()
	defer b.Close()

	b.AppendDelta("first turn")
	b.FinishAssistant("")
	b.AppendDelta("second turn")
	b.FinishAssistant("")

	if e := next(t, b); e.Text != "first turn" {
		t.Errorf("first entry = %q", e.Text)
	}
	if e := next(t, b); e.Text != "second turn" {
		t.Errorf("second entry = %q", e.Text)
	}
}
