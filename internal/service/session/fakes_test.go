package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/transport"
)

// fakeTransport delivers events synchronously through Emit.
type fakeTransport struct {
	mu           sync.Mutex
	listeners    map[int]transport.Listener
	nextID       int
	connectErr   error
	closeErr     error
	sendErr      error
	interruptErr error
	connected    bool
	closes       int
	ops          []string
	lastOpts     transport.Options
	toolOutputs  map[string]string
	muted        bool
	instructions chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		listeners:    make(map[int]transport.Listener),
		toolOutputs:  make(map[string]string),
		instructions: make(chan string, 8),
	}
}

func (f *fakeTransport) Connect(ctx context.Context, credential string, opts transport.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.lastOpts = opts
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return f.closeErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.ops = append(f.ops, "send:"+text)
	return nil
}

func (f *fakeTransport) Interrupt(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "interrupt")
	return f.interruptErr
}

func (f *fakeTransport) SendToolOutput(ctx context.Context, callID, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolOutputs[callID] = output
	return nil
}

func (f *fakeTransport) UpdateInstructions(ctx context.Context, instructions string) error {
	f.instructions <- instructions
	return nil
}

func (f *fakeTransport) SetInputMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
}

func (f *fakeTransport) InputMuted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeTransport) Subscribe(l transport.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeTransport) snapshot() []transport.Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		out = append(out, l)
	}
	return out
}

func (f *fakeTransport) Emit(ev transport.Event) {
	for _, l := range f.snapshot() {
		l(ev)
	}
}

func (f *fakeTransport) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeTransport) getOps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) agentDelta(responseID, text string) {
	f.Emit(transport.Event{Kind: transport.KindAgentTranscriptDelta, ResponseID: responseID, Text: text})
}

func (f *fakeTransport) agentDone(responseID, text string) {
	f.Emit(transport.Event{Kind: transport.KindAgentTranscriptDone, ResponseID: responseID, Text: text})
}

func (f *fakeTransport) userDelta(itemID, text string) {
	f.Emit(transport.Event{Kind: transport.KindUserTranscriptDelta, ItemID: itemID, Text: text})
}

func (f *fakeTransport) userDone(itemID, text string) {
	f.Emit(transport.Event{Kind: transport.KindUserTranscriptCompleted, ItemID: itemID, Text: text})
}

// staticSource returns a fixed credential or error.
type staticSource struct {
	value string
	err   error
}

func (s staticSource) Fetch(context.Context) (string, error) {
	return s.value, s.err
}

// gatedSource blocks until released.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedSource) Fetch(ctx context.Context) (string, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return "ek", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// recorder implements Callbacks and records every call as a line.
type recorder struct {
	mu       sync.Mutex
	calls    []string
	errs     []error
	metadata []models.ProductMetadata
	notify   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 256)}
}

func (r *recorder) add(line string) {
	r.mu.Lock()
	r.calls = append(r.calls, line)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) OnConnected()    { r.add("connected") }
func (r *recorder) OnDisconnected() { r.add("disconnected") }

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.add("error")
}

func (r *recorder) OnUserTranscription(itemID, text string, isComplete bool) {
	r.add(fmt.Sprintf("user %s %q %v", itemID, text, isComplete))
}

func (r *recorder) OnAgentTranscriptionDelta(responseID, accumulated string) {
	r.add(fmt.Sprintf("delta %s %q", responseID, accumulated))
}

func (r *recorder) OnAgentTranscriptionComplete(responseID, full string) {
	r.add(fmt.Sprintf("complete %s %q", responseID, full))
}

func (r *recorder) OnMetadata(md models.ProductMetadata) {
	r.mu.Lock()
	r.metadata = append(r.metadata, md)
	r.mu.Unlock()
	r.add("metadata")
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(line string) int {
	n := 0
	for _, c := range r.get() {
		if c == line {
			n++
		}
	}
	return n
}

func (r *recorder) withPrefix(prefix string) []string {
	var out []string
	for _, c := range r.get() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, line string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if r.count(line) > 0 {
			return
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %q, have %v", line, r.get())
		}
	}
}

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) == 0 {
		return nil
	}
	return r.errs[len(r.errs)-1]
}

func newTestManager(ft *fakeTransport, opts Options) *Manager {
	opts.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	return New(ft, staticSource{value: "ek_test"}, nil, opts)
}

func mustConnect(t *testing.T, m *Manager, cb Callbacks) {
	t.Helper()
	if err := m.Connect(context.Background(), cb); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

var errBoom = errors.New("boom")
