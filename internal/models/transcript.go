// Package models defines the data structures shared by the session, the
// conversation timeline and the event bus.
package models

// TimelineEvent is the wire form of a timeline change published to Kafka.
// Streaming updates go to the partial topic, finalized messages to the final topic.
type TimelineEvent struct {
	EventType string    `json:"eventType"`
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId"`
	Author    Author    `json:"author"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Products  []Product `json:"products,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Index     int       `json:"index"`
	Timestamp int64     `json:"timestamp"`
}

// Event type names carried in TimelineEvent.EventType.
const (
	EventTypeMessagePartial = "conversation.message.partial"
	EventTypeMessageFinal   = "conversation.message.final"
)
