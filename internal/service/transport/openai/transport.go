// Package openai implements transport.Transport over an OpenAI-realtime
// style WebSocket endpoint.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"realtime-commerce-assistant/internal/service/transport"
)

// Config holds adapter settings.
type Config struct {
	URL              string
	Model            string
	HandshakeTimeout time.Duration
	// TranscriptionModel enables input audio transcription when set.
	TranscriptionModel string
}

// Transport is a realtime WebSocket client. One instance serves one session
// at a time; Connect after Close opens a fresh connection.
type Transport struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	closing bool

	writeMu sync.Mutex

	lmu       sync.RWMutex
	listeners map[int]transport.Listener
	nextID    int

	muted atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unconnected transport.
func New(cfg Config) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &Transport{
		cfg:       cfg,
		logger:    log.With().Str("component", "openai-transport").Logger(),
		listeners: make(map[int]transport.Listener),
	}
}

func (t *Transport) endpoint() (string, error) {
	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	if t.cfg.Model != "" {
		q := u.Query()
		q.Set("model", t.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the endpoint and configures the session.
func (t *Transport) Connect(ctx context.Context, credential string, opts transport.Options) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return errors.New("transport already connected")
	}
	t.mu.Unlock()

	endpoint, err := t.endpoint()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial realtime endpoint: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.closing = false
	t.mu.Unlock()

	go t.readLoop(conn, done)

	if err := t.send(ctx, sessionUpdate(opts, t.cfg.TranscriptionModel)); err != nil {
		_ = t.Close()
		return fmt.Errorf("configure session: %w", err)
	}

	t.logger.Info().
		Str("model", t.cfg.Model).
		Str("language", opts.Language).
		Int("tools", len(opts.Tools)).
		Msg("Realtime transport connected")
	return nil
}

// Close sends a close frame and waits briefly for the reader to exit.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	if conn == nil {
		t.mu.Unlock()
		return nil
	}
	t.conn = nil
	t.closing = true
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()

	err := conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.logger.Warn().Msg("Timed out waiting for reader to exit")
	}
	return err
}

// SendMessage adds a user text item and requests a response.
func (t *Transport) SendMessage(ctx context.Context, text string) error {
	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
	if err := t.send(ctx, item); err != nil {
		return err
	}
	return t.send(ctx, map[string]any{"type": "response.create"})
}

// Interrupt cancels the in-flight response.
func (t *Transport) Interrupt(ctx context.Context) error {
	return t.send(ctx, map[string]any{"type": "response.cancel"})
}

// SendToolOutput returns a function result and resumes the response.
func (t *Transport) SendToolOutput(ctx context.Context, callID, output string) error {
	item := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
	if err := t.send(ctx, item); err != nil {
		return err
	}
	return t.send(ctx, map[string]any{"type": "response.create"})
}

// UpdateInstructions replaces the session instructions.
func (t *Transport) UpdateInstructions(ctx context.Context, instructions string) error {
	return t.send(ctx, map[string]any{
		"type":    "session.update",
		"session": map[string]any{"instructions": instructions},
	})
}

// SetInputMuted toggles input. Muting clears any buffered, uncommitted audio.
func (t *Transport) SetInputMuted(muted bool) {
	if t.muted.Swap(muted) == muted || !muted {
		return
	}
	if err := t.send(context.Background(), map[string]any{"type": "input_audio_buffer.clear"}); err != nil && !errors.Is(err, transport.ErrClosed) {
		t.logger.Warn().Err(err).Msg("Failed to clear input buffer on mute")
	}
}

func (t *Transport) InputMuted() bool {
	return t.muted.Load()
}

// Subscribe registers a listener.
func (t *Transport) Subscribe(l transport.Listener) func() {
	t.lmu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.lmu.Unlock()

	return func() {
		t.lmu.Lock()
		delete(t.listeners, id)
		t.lmu.Unlock()
	}
}

func (t *Transport) send(ctx context.Context, msg map[string]any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return transport.ErrClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %v: %w", msg["type"], err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %v: %w", msg["type"], err)
	}
	return nil
}

func (t *Transport) emit(ev transport.Event) {
	t.lmu.RLock()
	ls := make([]transport.Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.lmu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			intentional := t.closing
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()

			if intentional {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Error().Err(err).Msg("Realtime connection lost")
				t.emit(transport.Event{Kind: transport.KindError, Err: fmt.Errorf("read: %w", err)})
			}
			t.emit(transport.Event{Kind: transport.KindClosed})
			return
		}

		ev, ok := decode(payload)
		if !ok {
			continue
		}
		t.emit(ev)
	}
}
