package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/schema"
	"realtime-commerce-assistant/internal/service/conversation"
)

const (
	sinkBuffer     = 256
	publishTimeout = 5 * time.Second
)

// TimelineSink forwards the updates of one conversation to a Publisher in
// order, off the caller's goroutine. Updates arriving while the buffer is
// full are dropped.
type TimelineSink struct {
	publisher *Publisher
	validator *schema.Validator
	sessionID string
	logger    zerolog.Logger

	queue     chan models.TimelineEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewTimelineSink starts the sink goroutine. Call Close to drain and stop it.
func NewTimelineSink(p *Publisher, sessionID string) *TimelineSink {
	s := &TimelineSink{
		publisher: p,
		validator: schema.New(),
		sessionID: sessionID,
		logger:    logging.WithSession("timeline-sink", sessionID),
		queue:     make(chan models.TimelineEvent, sinkBuffer),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// Listen is a conversation.Listener.
func (s *TimelineSink) Listen(u conversation.Update) {
	ev := TimelineEvent(s.sessionID, u)
	if err := s.validator.Validate(ev); err != nil {
		s.logger.Warn().Err(err).Str("update", string(u.Type)).Msg("Dropping invalid timeline event")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn().Str("messageId", ev.MessageID).Msg("Timeline sink full, dropping event")
	}
}

// Close publishes what is queued and stops the sink.
func (s *TimelineSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
}

func (s *TimelineSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := s.publisher.Publish(ctx, ev)
		cancel()
		if err != nil {
			s.logger.Warn().Err(err).Str("messageId", ev.MessageID).Msg("Failed to publish timeline event")
		}
	}
}

// TimelineEvent converts a reconciler update to its wire form. Finalized
// messages, and messages added already final, are final events; everything
// else is partial.
func TimelineEvent(sessionID string, u conversation.Update) models.TimelineEvent {
	eventType := models.EventTypeMessagePartial
	if u.Type == conversation.UpdateFinalized || (u.Type == conversation.UpdateAdded && u.Message.Final) {
		eventType = models.EventTypeMessageFinal
	}
	ts := u.Message.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.TimelineEvent{
		EventType: eventType,
		SessionID: sessionID,
		MessageID: u.Message.ID,
		Author:    u.Message.Author,
		Kind:      u.Message.Kind,
		Text:      u.Message.Content,
		Products:  u.Message.Products,
		Reasoning: u.Message.Reasoning,
		Index:     u.Index,
		Timestamp: ts.UnixMilli(),
	}
}
