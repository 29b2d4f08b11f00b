package transcript

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTracker_AccumulatesPrefixExtendingText(t *testing.T) {
	tr := NewTracker(0, nil)
	fragments := []string{"Hello", "! ", "How can ", "I help?"}

	var prev string
	for _, f := range fragments {
		text, ok := tr.Append("r1", f)
		if !ok {
			t.Fatalf("expected unthrottled emission for %q", f)
		}
		if !strings.HasPrefix(text, prev) || len(text) <= len(prev) {
			t.Errorf("expected %q to extend %q", text, prev)
		}
		prev = text
	}

	c := tr.Complete("r1", "")
	if c.Full != strings.Join(fragments, "") {
		t.Errorf("expected full concatenation, got %q", c.Full)
	}
	if c.Pending != "" {
		t.Errorf("expected nothing pending, got %q", c.Pending)
	}
	if tr.Len() != 0 {
		t.Errorf("expected buffer discarded on completion, %d remain", tr.Len())
	}
}

func TestTracker_ThrottleNeverLosesFinalText(t *testing.T) {
	var flushes atomic.Int32
	tr := NewTracker(time.Hour, func(string) { flushes.Add(1) })
	tr.now = fixedClock(time.Unix(1000, 0))

	emitted := 0
	for _, f := range []string{"a", "b", "c", "d"} {
		if _, ok := tr.Append("r1", f); ok {
			emitted++
		}
	}
	if emitted != 1 {
		t.Errorf("expected only the first delta through, got %d", emitted)
	}

	c := tr.Complete("r1", "")
	if c.Pending != "abcd" {
		t.Errorf("expected pending flush of all text, got %q", c.Pending)
	}
	if c.Full != "abcd" {
		t.Errorf("expected full text abcd, got %q", c.Full)
	}
	if flushes.Load() != 0 {
		t.Error("expected trailing flush cancelled by completion")
	}
}

func TestTracker_DoneTextIsAuthoritative(t *testing.T) {
	tr := NewTracker(0, nil)
	tr.Append("r1", "Hel")

	if c := tr.Complete("r1", "Hello"); c.Full != "Hello" {
		t.Errorf("expected done text, got %q", c.Full)
	}
	if c := tr.Complete("unknown", ""); c.Full != "" || c.Pending != "" {
		t.Errorf("expected empty completion for unknown response, got %+v", c)
	}
}

func TestTracker_TrailingFlush(t *testing.T) {
	due := make(chan string, 4)
	tr := NewTracker(20*time.Millisecond, func(id string) { due <- id })

	if text, ok := tr.Append("r1", "a"); !ok || text != "a" {
		t.Fatalf("expected immediate first emission, got %q %v", text, ok)
	}
	if _, ok := tr.Append("r1", "b"); ok {
		t.Fatal("expected second delta to be deferred")
	}
	tr.Append("r1", "c")

	select {
	case id := <-due:
		if id != "r1" {
			t.Fatalf("unexpected flush for %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected trailing flush")
	}

	if text, ok := tr.Flush("r1"); !ok || text != "abc" {
		t.Errorf("expected flush of abc, got %q %v", text, ok)
	}
	if _, ok := tr.Flush("r1"); ok {
		t.Error("expected nothing left to flush")
	}
	if len(due) != 0 {
		t.Error("expected a single trailing flush for the burst")
	}
}

func TestTracker_ResetStopsFlushes(t *testing.T) {
	var flushes atomic.Int32
	tr := NewTracker(30*time.Millisecond, func(string) { flushes.Add(1) })

	tr.Append("r1", "a")
	tr.Append("r1", "b")
	tr.Append("r2", "x")

	if n := tr.Reset(); n != 2 {
		t.Errorf("expected 2 buffers dropped, got %d", n)
	}
	time.Sleep(80 * time.Millisecond)
	if flushes.Load() != 0 {
		t.Error("expected no flush after reset")
	}
	if _, ok := tr.Flush("r1"); ok {
		t.Error("expected flush after reset to be a no-op")
	}
}

func TestBuffer_StateMachine(t *testing.T) {
	b := newBuffer("r1", 0)
	if b.State() != StatePending {
		t.Fatalf("expected PENDING, got %v", b.State())
	}
	if err := b.Append("x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Complete(); !errors.Is(err, ErrCompleted) {
		t.Errorf("expected ErrCompleted, got %v", err)
	}
	if err := b.Append("y"); !errors.Is(err, ErrCompleted) {
		t.Errorf("expected ErrCompleted, got %v", err)
	}
	if b.Text() != "x" {
		t.Errorf("expected text unchanged after completion, got %q", b.Text())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "PENDING"},
		{StateCompleted, "COMPLETED"},
		{State(7), "UNKNOWN(7)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestItems(t *testing.T) {
	items := NewItems()
	if got := items.Append("u1", "show "); got != "show " {
		t.Errorf("unexpected accumulation %q", got)
	}
	if got := items.Append("u1", "me"); got != "show me" {
		t.Errorf("unexpected accumulation %q", got)
	}

	if got := items.Complete("u1", ""); got != "show me" {
		t.Errorf("expected accumulated text as fallback, got %q", got)
	}
	if items.Len() != 0 {
		t.Error("expected item discarded")
	}

	items.Append("u2", "ho")
	if got := items.Complete("u2", "hola"); got != "hola" {
		t.Errorf("expected full text to win, got %q", got)
	}

	items.Append("u3", "x")
	items.Reset()
	if items.Len() != 0 {
		t.Error("expected reset to drop items")
	}
}
