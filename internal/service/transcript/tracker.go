package transcript

import (
	"sync"
	"time"
)

// Completion is the outcome of completing a response.
type Completion struct {
	// Pending holds throttled text that was never surfaced, to be delivered
	// as a final delta before the completion. Empty when nothing is pending.
	Pending string
	// Full is the authoritative final text.
	Full string
}

// Tracker owns the per-response buffers of one session.
//
// Buffers are created on the first delta for a response id, including ids
// never seen before, and destroyed on completion or Reset. A delta is either
// admitted immediately or deferred to a single trailing flush, so the last
// surfaced text before completion always carries every fragment received.
type Tracker struct {
	mu       sync.Mutex
	interval time.Duration
	buffers  map[string]*Buffer
	onFlush  func(responseID string)
	now      func() time.Time
}

// NewTracker creates a tracker. interval is the minimum time between two
// surfaced deltas of the same response; zero disables throttling. onFlush is
// invoked from a timer goroutine when a deferred delta becomes due; it should
// call Flush through the owner's serialization.
func NewTracker(interval time.Duration, onFlush func(responseID string)) *Tracker {
	return &Tracker{
		interval: interval,
		buffers:  make(map[string]*Buffer),
		onFlush:  onFlush,
		now:      time.Now,
	}
}

// Append adds a fragment for responseID. When ok is true, text is the full
// accumulated text to surface now.
func (t *Tracker) Append(responseID, fragment string) (text string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, exists := t.buffers[responseID]
	if !exists {
		b = newBuffer(responseID, t.interval)
		t.buffers[responseID] = b
	}
	if err := b.Append(fragment); err != nil {
		return "", false
	}

	allowed, wait := b.admit(t.now())
	if allowed {
		b.stopFlush()
		return b.markEmitted(), true
	}
	if b.flush == nil && t.onFlush != nil {
		b.flush = time.AfterFunc(wait, func() { t.onFlush(responseID) })
	}
	return "", false
}

// Flush surfaces deferred text for responseID. ok is false when the buffer
// is gone or nothing new accumulated since the last emission.
func (t *Tracker) Flush(responseID string) (text string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, exists := t.buffers[responseID]
	if !exists || b.State() != StatePending {
		return "", false
	}
	b.flush = nil
	if !b.Dirty() {
		return "", false
	}
	if b.limiter != nil {
		// consume the slot so the next delta is paced from here
		b.limiter.ReserveN(t.now(), 1)
	}
	return b.markEmitted(), true
}

// Complete finalizes responseID and discards its buffer. doneText, when not
// empty, is the transport's authoritative full text; otherwise the
// accumulated text is used.
func (t *Tracker) Complete(responseID, doneText string) Completion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var c Completion
	b, exists := t.buffers[responseID]
	if exists {
		delete(t.buffers, responseID)
		_ = b.Complete()
		if b.Dirty() {
			c.Pending = b.markEmitted()
		}
		c.Full = b.Text()
	}
	if doneText != "" {
		c.Full = doneText
	}
	return c
}

// Text returns the accumulated text for responseID.
func (t *Tracker) Text(responseID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buffers[responseID]
	if !ok {
		return "", false
	}
	return b.Text(), true
}

// Len returns the number of live buffers.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffers)
}

// Reset drops every buffer and stops pending flushes.
func (t *Tracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.buffers)
	for _, b := range t.buffers {
		b.stopFlush()
	}
	t.buffers = make(map[string]*Buffer)
	return n
}
