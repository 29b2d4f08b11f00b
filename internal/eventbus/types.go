// Package eventbus provides a typed, priority-ordered publish/subscribe bus
// that decouples event emitters (the realtime session and its tool handlers)
// from UI consumers.
package eventbus

import (
	"context"
	"time"
)

// Type names an event. The constants below are the wire contract with UI consumers.
type Type string

const (
	Show3D          Type = "SHOW_3D"
	ShowMultimedia  Type = "SHOW_MULTIMEDIA"
	Hide3D          Type = "HIDE_3D"
	HideMultimedia  Type = "HIDE_MULTIMEDIA"
	UIUpdate        Type = "UI_UPDATE"
	UserInteraction Type = "USER_INTERACTION"
)

// Types lists every event type of the taxonomy.
var Types = []Type{Show3D, ShowMultimedia, Hide3D, HideMultimedia, UIUpdate, UserInteraction}

// Event is one emitted instance.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   any            `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  int            `json:"priority"`
	Source    string         `json:"source,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Handler consumes an event. A returned error or a panic is logged by the bus
// and never affects other handlers of the same emission.
type Handler func(ctx context.Context, ev Event) error

// SubscribeOptions configures a registration.
type SubscribeOptions struct {
	// Priority orders handlers; higher runs first. Equal priorities keep insertion order.
	Priority int
	Once     bool
	Source   string
}

// EmitOptions configures an emission.
type EmitOptions struct {
	Priority int
	// Delay defers the emission without blocking the caller.
	Delay    time.Duration
	Source   string
	Metadata map[string]any
}
