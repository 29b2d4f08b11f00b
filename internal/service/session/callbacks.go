package session

import "realtime-commerce-assistant/internal/models"

// Callbacks receives normalized session output.
//
// Callbacks are invoked one at a time in arrival order. They may call
// SendMessage, SendGreeting, Interrupt and MuteInput, but must not call
// Connect or Disconnect synchronously.
type Callbacks interface {
	OnConnected()
	OnDisconnected()
	OnError(err error)
	// OnUserTranscription delivers the accumulated user transcript of itemID.
	OnUserTranscription(itemID, text string, isComplete bool)
	// OnAgentTranscriptionDelta delivers the full text accumulated so far;
	// consumers replace displayed content with it.
	OnAgentTranscriptionDelta(responseID, accumulated string)
	OnAgentTranscriptionComplete(responseID, full string)
	OnMetadata(md models.ProductMetadata)
}

// NopCallbacks ignores every callback. Embed it to implement a subset.
type NopCallbacks struct{}

func (NopCallbacks) OnConnected() {}
func (NopCallbacks) OnDisconnected() {}
func (NopCallbacks) OnError(error) {}
func (NopCallbacks) OnUserTranscription(string, string, bool) {}
func (NopCallbacks) OnAgentTranscriptionDelta(string, string) {}
func (NopCallbacks) OnAgentTranscriptionComplete(string, string) {}
func (NopCallbacks) OnMetadata(models.ProductMetadata) {}
