package eventbus

// history is a fixed-capacity circular buffer of emitted events.
// Not safe for concurrent use; the bus guards it.
type history struct {
	buf   []Event
	start int
	size  int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{buf: make([]Event, capacity)}
}

func (h *history) add(ev Event) {
	if len(h.buf) == 0 {
		return
	}
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = ev
		h.size++
		return
	}
	// full: overwrite the oldest
	h.buf[h.start] = ev
	h.start = (h.start + 1) % len(h.buf)
}

// snapshot returns the retained events, oldest first.
func (h *history) snapshot() []Event {
	out := make([]Event, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) reset() {
	for i := range h.buf {
		h.buf[i] = Event{}
	}
	h.start, h.size = 0, 0
}
