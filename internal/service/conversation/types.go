package conversation

import (
	"context"

	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/service/session"
)

// UpdateType describes a timeline mutation.
type UpdateType string

const (
	// UpdateAdded: a message was inserted at Index; messages from Index on
	// moved down by one. It may already be final.
	UpdateAdded UpdateType = "added"
	// UpdateUpdated: the streaming message at Index had its content replaced.
	UpdateUpdated UpdateType = "updated"
	// UpdateFinalized: the message at Index became final.
	UpdateFinalized UpdateType = "finalized"
	// UpdateLive: the pending user transcript changed. It is not part of the
	// timeline yet; Index is -1.
	UpdateLive UpdateType = "live"
)

// Update is delivered to listeners in mutation order.
type Update struct {
	Type    UpdateType     `json:"type"`
	Message models.Message `json:"message"`
	Index   int            `json:"index"`
}

// Listener observes timeline updates. Listeners run one at a time and must
// not mutate the reconciler; reads such as Messages are allowed.
type Listener func(Update)

// Connection states reported through Status.
const (
	StatusIdle         = "idle"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

// Status is the human-readable connection status shown to the user.
type Status struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Session is the part of the session manager the reconciler drives.
type Session interface {
	Connect(ctx context.Context, cb session.Callbacks) error
	Disconnect() error
	SendMessage(ctx context.Context, text string) error
}

// Emitter publishes status changes for UI consumers.
type Emitter interface {
	Emit(ctx context.Context, t eventbus.Type, payload any, opts eventbus.EmitOptions) eventbus.Event
}
