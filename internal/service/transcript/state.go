// Package transcript accumulates streamed transcript deltas per response and
// throttles how often accumulated text is surfaced.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// State represents the lifecycle state of a response buffer.
type State int

const (
	// StatePending - Deltas are accumulating.
	StatePending State = iota
	// StateCompleted - Done received. Terminal; the buffer is discarded.
	StateCompleted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var ErrCompleted = errors.New("response buffer already completed")

// Buffer is the state machine for one response id.
//
// State transitions:
//
//	PENDING ──Append()──→ PENDING
//	PENDING ──Complete()─→ COMPLETED (terminal)
//
// Not safe for concurrent use; Tracker serializes access.
type Buffer struct {
	responseID  string
	state       State
	text        strings.Builder
	lastEmitted string
	limiter     *rate.Limiter
	flush       *time.Timer
}

func newBuffer(responseID string, interval time.Duration) *Buffer {
	b := &Buffer{responseID: responseID, state: StatePending}
	if interval > 0 {
		b.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return b
}

// ResponseID returns the response the buffer belongs to.
func (b *Buffer) ResponseID() string { return b.responseID }

// State returns the current state.
func (b *Buffer) State() State { return b.state }

// Text returns everything accumulated so far.
func (b *Buffer) Text() string { return b.text.String() }

// Append adds a fragment.
func (b *Buffer) Append(fragment string) error {
	if b.state != StatePending {
		return ErrCompleted
	}
	b.text.WriteString(fragment)
	return nil
}

// Dirty reports whether accumulated text has not been surfaced yet.
func (b *Buffer) Dirty() bool {
	return b.text.String() != b.lastEmitted
}

// admit decides whether an emission may happen at now. When refused it
// returns how long until the next emission is allowed.
func (b *Buffer) admit(now time.Time) (bool, time.Duration) {
	if b.limiter == nil {
		return true, 0
	}
	r := b.limiter.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (b *Buffer) markEmitted() string {
	b.lastEmitted = b.text.String()
	return b.lastEmitted
}

// Complete transitions to COMPLETED and stops any trailing flush.
func (b *Buffer) Complete() error {
	if b.state != StatePending {
		return ErrCompleted
	}
	b.state = StateCompleted
	b.stopFlush()
	return nil
}

func (b *Buffer) stopFlush() {
	if b.flush != nil {
		b.flush.Stop()
		b.flush = nil
	}
}
