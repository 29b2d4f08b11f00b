package http

import (
	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/service/conversation"
)

// Client frame types.
const (
	FrameConnect     = "connect"
	FrameDisconnect  = "disconnect"
	FrameSend        = "send"
	FrameInterrupt   = "interrupt"
	FrameMute        = "mute"
	FrameInteraction = "interaction"
)

// Server frame types.
const (
	FrameReady    = "ready"
	FrameHistory  = "history"
	FrameTimeline = "timeline"
	FrameBus      = "bus"
	FrameStatus   = "status"
	FrameError    = "error"
)

// ClientFrame is a command sent by the browser or CLI.
type ClientFrame struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Muted  bool           `json:"muted,omitempty"`
	Action string         `json:"action,omitempty"`
	Target string         `json:"target,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// ServerFrame is pushed to the client. Exactly one payload field is set,
// matching Type.
type ServerFrame struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId,omitempty"`
	Messages  []models.Message     `json:"messages,omitempty"`
	Update    *conversation.Update `json:"update,omitempty"`
	Event     *eventbus.Event      `json:"event,omitempty"`
	Status    *conversation.Status `json:"status,omitempty"`
	Error     *ErrorBody           `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
