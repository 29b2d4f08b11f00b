// Package schema validates timeline events before they leave the service.
package schema

import (
	"errors"
	"fmt"

	"realtime-commerce-assistant/internal/models"
)

var ErrInvalidEvent = errors.New("invalid timeline event")

// FieldError names the offending field of an invalid event.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidEvent, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidEvent }

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks the required fields and enumerations of ev. A live user
// transcript (Index -1) has no message id yet and may omit it.
func (v *Validator) Validate(ev models.TimelineEvent) error {
	switch ev.EventType {
	case models.EventTypeMessagePartial, models.EventTypeMessageFinal:
	default:
		return &FieldError{Field: "eventType", Reason: fmt.Sprintf("unknown value %q", ev.EventType)}
	}
	if ev.SessionID == "" {
		return &FieldError{Field: "sessionId", Reason: "is required"}
	}
	if ev.MessageID == "" && ev.Index >= 0 {
		return &FieldError{Field: "messageId", Reason: "is required"}
	}
	if ev.Index < -1 {
		return &FieldError{Field: "index", Reason: "must be -1 or greater"}
	}
	if ev.Index == -1 && ev.EventType == models.EventTypeMessageFinal {
		return &FieldError{Field: "index", Reason: "final events must reference a timeline position"}
	}
	switch ev.Author {
	case models.AuthorUser, models.AuthorAgent:
	default:
		return &FieldError{Field: "author", Reason: fmt.Sprintf("unknown value %q", ev.Author)}
	}
	switch ev.Kind {
	case models.KindText, models.KindProduct, models.KindMultimedia, models.KindError:
	default:
		return &FieldError{Field: "kind", Reason: fmt.Sprintf("unknown value %q", ev.Kind)}
	}
	if ev.Timestamp <= 0 {
		return &FieldError{Field: "timestamp", Reason: "must be positive"}
	}
	return nil
}
