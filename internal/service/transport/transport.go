// Package transport defines the boundary to realtime voice-AI backends.
// Adapters translate their wire events into the closed Kind set once, at the
// boundary, so the session manager only ever switches over known kinds.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned by operations on a transport that is not open.
var ErrClosed = errors.New("transport closed")

// ToolDefinition declares a tool the assistant may invoke.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Options configures a realtime session at connect time.
type Options struct {
	Instructions string
	Voice        string
	Model        string
	Language     string
	Tools        []ToolDefinition
}

// ToolCall is an assistant request to run an application-side function.
// Arguments is whatever the backend delivered: a decoded object, raw JSON,
// or a JSON-encoded string.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments any
}

// Event is one normalized transport event.
type Event struct {
	Kind       Kind
	ItemID     string
	ResponseID string
	// Text is the fragment for delta kinds and the full text for completion kinds.
	Text     string
	ToolCall *ToolCall
	Err      error
	// Raw is the undecoded wire payload, when the adapter has one.
	Raw json.RawMessage
}

// Listener receives transport events in arrival order.
type Listener func(Event)

// Transport is a realtime connection to a voice-AI backend.
type Transport interface {
	// Connect performs the handshake using an ephemeral credential.
	Connect(ctx context.Context, credential string, opts Options) error

	// Close ends the connection. Safe to call more than once.
	Close() error

	// SendMessage sends a user text message and requests a response.
	SendMessage(ctx context.Context, text string) error

	// Interrupt asks the backend to stop the in-flight response.
	Interrupt(ctx context.Context) error

	// SendToolOutput returns a tool result for callID and resumes the response.
	SendToolOutput(ctx context.Context, callID, output string) error

	// UpdateInstructions replaces the session instructions.
	UpdateInstructions(ctx context.Context, instructions string) error

	SetInputMuted(muted bool)
	InputMuted() bool

	// Subscribe registers l and returns a function removing it.
	Subscribe(l Listener) (unsubscribe func())
}
