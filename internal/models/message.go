package models

import "time"

// Author identifies who produced a timeline message.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// Kind classifies the content of a timeline message.
type Kind string

const (
	KindText       Kind = "text"
	KindProduct    Kind = "product"
	KindMultimedia Kind = "multimedia"
	KindError      Kind = "error"
)

// Message is one entry in the conversation timeline.
// Agent text messages are streamed: Content is replaced on every delta
// until Final is set. Once Final, a message is never changed again.
type Message struct {
	ID         string    `json:"id"`
	Author     Author    `json:"author"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	Products   []Product `json:"products,omitempty"`
	Reasoning  string    `json:"reasoning,omitempty"`
	ResponseID string    `json:"responseId,omitempty"`
	ItemID     string    `json:"itemId,omitempty"`
	Final      bool      `json:"final"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProductMetadata is the result of a product recommendation tool call.
type ProductMetadata struct {
	Products  []Product `json:"products"`
	Reasoning string    `json:"reasoning"`
}
