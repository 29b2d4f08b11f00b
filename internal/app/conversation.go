package app

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/events"
	"realtime-commerce-assistant/internal/history"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/service/conversation"
	"realtime-commerce-assistant/internal/service/session"
	"realtime-commerce-assistant/internal/service/tools"
)

// ConversationOptions describes one client.
type ConversationOptions struct {
	// SessionID resumes an earlier conversation's history when set.
	SessionID       string
	BrowserLanguage string
}

// Conversation is the per-client bundle: an event bus, a realtime session
// and the timeline reconciling it.
type Conversation struct {
	ID       string
	Bus      *eventbus.Bus
	Session  *session.Manager
	Timeline *conversation.Reconciler

	app       *Application
	sink      *events.TimelineSink
	closeOnce sync.Once
}

// NewConversation wires a fresh session for one client. Nothing connects
// until Timeline.Start is called.
func (a *Application) NewConversation(opts ConversationOptions) *Conversation {
	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	bus := eventbus.New(
		eventbus.WithMaxSubscribers(a.Cfg.Bus.MaxSubscribers),
		eventbus.WithHistorySize(a.Cfg.Bus.HistorySize),
		eventbus.WithMetrics(a.Metrics),
	)
	handler := tools.NewHandler(a.Catalog, bus, a.Metrics)

	browser := opts.BrowserLanguage
	if browser == "" {
		browser = a.Cfg.Session.DefaultLanguage
	}
	mgr := session.New(a.newTransport(), a.Credentials, handler, session.Options{
		SessionID:       id,
		DeltaThrottle:   a.Cfg.Session.DeltaThrottle,
		AutoGreet:       a.Cfg.Session.AutoGreet,
		BrowserLanguage: browser,
		Voice:           a.Cfg.Realtime.Voice,
		Model:           a.Cfg.Realtime.Model,
		Metrics:         a.Metrics,
	})
	timeline := conversation.New(mgr, conversation.Options{
		SessionID: id,
		// resumed conversations must not reuse stored message ids
		IDPrefix:    id + "-" + uuid.NewString()[:8],
		QuietWindow: a.Cfg.Session.IdleFinalize,
		Bus:         bus,
		Metrics:     a.Metrics,
	})

	recorder := history.NewRecorder(a.History, a.historyBackend, id, a.Metrics)
	sink := events.NewTimelineSink(a.Publisher, id)
	timeline.AddListener(recorder.Listen)
	timeline.AddListener(sink.Listen)

	return &Conversation{
		ID:       id,
		Bus:      bus,
		Session:  mgr,
		Timeline: timeline,
		app:      a,
		sink:     sink,
	}
}

// History returns the stored messages of this conversation.
func (c *Conversation) History(ctx context.Context) ([]models.Message, error) {
	return c.app.History.Messages(ctx, c.ID)
}

// Close disconnects the session and releases the bundle.
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		if err := c.Session.Disconnect(); err != nil {
			c.app.Logger.Warn().Err(err).Str("sessionId", c.ID).Msg("Session disconnect failed")
		}
		c.Timeline.Close()
		c.sink.Close()
		c.Bus.Close()
	})
}
