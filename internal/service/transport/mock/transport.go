// Package mock provides a scripted realtime transport for local development
// and tests. It simulates streaming behavior: user transcripts arriving as
// partials then a completion, agent transcripts as deltas then a done event,
// and tool calls, each delivered asynchronously after a simulated latency.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"realtime-commerce-assistant/internal/service/transport"
)

// Reply is a scripted assistant turn.
type Reply struct {
	// Match selects the reply when the lowercased message contains it.
	// An empty Match is the fallback.
	Match  string
	Tool   *transport.ToolCall
	Deltas []string
}

// DefaultReplies provides a small shopping conversation.
var DefaultReplies = []Reply{
	{
		Match: "shoe",
		Tool: &transport.ToolCall{
			Name:      "send_product_metadata",
			Arguments: `{"skus":["RUN-001","RUN-002"],"reasoning":"Both are cushioned road runners."}`,
		},
		Deltas: []string{"Here are ", "two running ", "shoes I ", "recommend."},
	},
	{
		Match: "3d",
		Tool: &transport.ToolCall{
			Name:      "show_3d",
			Arguments: map[string]any{"sku": "RUN-001"},
		},
		Deltas: []string{"Opening ", "the 3D ", "view now."},
	},
	{
		Match:  "",
		Deltas: []string{"Hello! ", "How can ", "I help?"},
	},
}

// Config configures the mock.
type Config struct {
	Latency time.Duration
	Replies []Reply
	// EchoUserTranscripts simulates speech: each sent message is first
	// reported back as a user transcription.
	EchoUserTranscripts bool
}

// Transport implements transport.Transport with scripted behavior.
type Transport struct {
	cfg Config

	mu         sync.Mutex
	connected  bool
	generation int
	seq        int
	muted      bool
	listeners  map[int]transport.Listener
	nextID     int
	sent       []string
	toolOutput map[string]string
}

var _ transport.Transport = (*Transport)(nil)

// New creates a mock transport.
func New(cfg Config) *Transport {
	if cfg.Replies == nil {
		cfg.Replies = DefaultReplies
	}
	return &Transport{
		cfg:        cfg,
		listeners:  make(map[int]transport.Listener),
		toolOutput: make(map[string]string),
	}
}

// Connect marks the transport open and announces the session.
func (t *Transport) Connect(ctx context.Context, credential string, opts transport.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if credential == "" {
		return fmt.Errorf("mock transport: empty credential")
	}

	t.mu.Lock()
	t.connected = true
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	t.later(0, func() {
		t.emit(gen, transport.Event{Kind: transport.KindSessionCreated})
	})
	return nil
}

// Close ends the session. Pending scripted events are discarded.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.generation++
	return nil
}

// SendMessage reports the created user item, then plays the first reply
// whose Match appears in text.
func (t *Transport) SendMessage(ctx context.Context, text string) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.sent = append(t.sent, text)
	t.seq++
	seq := t.seq
	gen := t.generation
	t.mu.Unlock()

	reply := t.pick(text)
	itemID := fmt.Sprintf("item_%d", seq)
	responseID := fmt.Sprintf("resp_%d", seq)

	go func() {
		t.sleep(1)
		t.emit(gen, transport.Event{Kind: transport.KindUserItemCreated, ItemID: itemID, Text: text})
		if t.cfg.EchoUserTranscripts {
			words := strings.Fields(text)
			for _, w := range words[:max(len(words)-1, 0)] {
				t.emit(gen, transport.Event{Kind: transport.KindUserTranscriptDelta, ItemID: itemID, Text: w + " "})
				t.sleep(1)
			}
			t.emit(gen, transport.Event{Kind: transport.KindUserTranscriptCompleted, ItemID: itemID, Text: text})
		}
		if reply.Tool != nil {
			call := *reply.Tool
			call.CallID = fmt.Sprintf("call_%d", seq)
			t.emit(gen, transport.Event{Kind: transport.KindToolCall, ResponseID: responseID, ToolCall: &call})
		}
		var full strings.Builder
		for _, d := range reply.Deltas {
			t.sleep(1)
			full.WriteString(d)
			t.emit(gen, transport.Event{Kind: transport.KindAgentTranscriptDelta, ResponseID: responseID, Text: d})
		}
		t.emit(gen, transport.Event{Kind: transport.KindAgentTranscriptDone, ResponseID: responseID, Text: full.String()})
	}()
	return nil
}

// Interrupt discards the in-flight scripted reply.
func (t *Transport) Interrupt(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrClosed
	}
	t.generation++
	return nil
}

// SendToolOutput records the result for inspection.
func (t *Transport) SendToolOutput(ctx context.Context, callID, output string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrClosed
	}
	t.toolOutput[callID] = output
	return nil
}

func (t *Transport) UpdateInstructions(ctx context.Context, instructions string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrClosed
	}
	return nil
}

func (t *Transport) SetInputMuted(muted bool) {
	t.mu.Lock()
	t.muted = muted
	t.mu.Unlock()
}

func (t *Transport) InputMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// Subscribe registers a listener.
func (t *Transport) Subscribe(l transport.Listener) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Inject delivers ev to listeners synchronously, bypassing the script.
func (t *Transport) Inject(ev transport.Event) {
	for _, l := range t.snapshot() {
		l(ev)
	}
}

// Sent returns the messages passed to SendMessage.
func (t *Transport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// ToolOutput returns the output recorded for callID.
func (t *Transport) ToolOutput(callID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, ok := t.toolOutput[callID]
	return out, ok
}

func (t *Transport) pick(text string) Reply {
	lower := strings.ToLower(text)
	var fallback Reply
	for _, r := range t.cfg.Replies {
		if r.Match == "" {
			fallback = r
			continue
		}
		if strings.Contains(lower, r.Match) {
			return r
		}
	}
	return fallback
}

func (t *Transport) sleep(steps int) {
	if t.cfg.Latency > 0 {
		time.Sleep(time.Duration(steps) * t.cfg.Latency)
	}
}

func (t *Transport) later(steps int, fn func()) {
	go func() {
		t.sleep(steps)
		fn()
	}()
}

func (t *Transport) snapshot() []transport.Listener {
	t.mu.Lock()
	defer t.mu.Unlock()
	ls := make([]transport.Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	return ls
}

// emit delivers ev unless the session generation moved on.
func (t *Transport) emit(gen int, ev transport.Event) {
	t.mu.Lock()
	stale := !t.connected || t.generation != gen
	t.mu.Unlock()
	if stale {
		return
	}
	for _, l := range t.snapshot() {
		l(ev)
	}
}
