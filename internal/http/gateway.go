package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/app"
	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/conversation"
	"realtime-commerce-assistant/internal/service/language"
	"realtime-commerce-assistant/internal/service/session"
)

const (
	outboundQueueSize = 256
	maxFrameBytes     = 64 << 10
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 50 * time.Second
)

// Gateway serves one conversation per WebSocket client.
type Gateway struct {
	app      *app.Application
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewGateway(a *app.Application) *Gateway {
	return &Gateway{
		app: a,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.WithComponent("gateway"),
	}
}

// ServeHTTP upgrades the request. The optional "session" query parameter
// resumes a stored conversation; "lang" overrides Accept-Language.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	conv := g.app.NewConversation(app.ConversationOptions{
		SessionID:       strings.TrimSpace(r.URL.Query().Get("session")),
		BrowserLanguage: language.Normalize(lang),
	})

	c := newClient(conn, conv, g.app.Metrics)
	c.serve()
}

type client struct {
	conn    *websocket.Conn
	conv    *app.Conversation
	out     chan ServerFrame
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func newClient(conn *websocket.Conn, conv *app.Conversation, m *metrics.Metrics) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		conn:    conn,
		conv:    conv,
		out:     make(chan ServerFrame, outboundQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logging.WithSession("gateway", conv.ID),
		metrics: m,
	}
}

// serve blocks until the client goes away, then tears the conversation down.
func (c *client) serve() {
	c.metrics.GatewayClients.Inc()
	defer c.metrics.GatewayClients.Dec()
	c.logger.Info().Msg("Client attached")

	c.conv.Timeline.AddListener(c.onUpdate)
	for _, t := range eventbus.Types {
		c.conv.Bus.Subscribe(t, c.onBusEvent, eventbus.SubscribeOptions{Source: "gateway"})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.push(ServerFrame{Type: FrameReady, SessionID: c.conv.ID})
	if msgs, err := c.conv.History(c.ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load history")
	} else if len(msgs) > 0 {
		c.push(ServerFrame{Type: FrameHistory, Messages: msgs})
	}

	c.readLoop()

	c.cancel()
	c.wg.Wait()
	c.conv.Close()
	<-writerDone
	_ = c.conn.Close()
	c.logger.Info().Msg("Client detached")
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Client connection lost")
			}
			return
		}

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.pushError("bad_frame", "frame is not valid JSON")
			continue
		}
		c.metrics.RecordGatewayFrame("in", f.Type)
		c.dispatch(f)
	}
}

func (c *client) dispatch(f ClientFrame) {
	switch f.Type {
	case FrameConnect:
		// connecting blocks on the token fetch and the dial; keep reading so
		// a disconnect can cancel it
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			err := c.conv.Timeline.Start(c.ctx)
			switch {
			case err == nil, errors.Is(err, session.ErrConnectCanceled):
			case errors.Is(err, session.ErrAlreadyConnecting):
				c.pushError("already_connecting", err.Error())
			default:
				c.pushError("connect_failed", err.Error())
			}
		}()

	case FrameDisconnect:
		if err := c.conv.Timeline.Stop(); err != nil {
			c.pushError("disconnect_failed", err.Error())
		}

	case FrameSend:
		err := c.conv.Timeline.Send(c.ctx, f.Text)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrEmptyMessage):
			c.pushError("empty_message", err.Error())
		default:
			c.pushError("send_failed", err.Error())
		}

	case FrameInterrupt:
		c.conv.Session.Interrupt(c.ctx)

	case FrameMute:
		c.conv.Session.MuteInput(f.Muted)

	case FrameInteraction:
		c.conv.Bus.Emit(c.ctx, eventbus.UserInteraction, models.UserInteraction{
			Action: f.Action,
			Target: f.Target,
			Data:   f.Data,
		}, eventbus.EmitOptions{Source: "client"})

	default:
		c.pushError("unknown_frame", "unknown frame type "+f.Type)
	}
}

func (c *client) onUpdate(u conversation.Update) {
	c.push(ServerFrame{Type: FrameTimeline, Update: &u})
}

// onBusEvent forwards bus events. Connection UI updates become status frames.
func (c *client) onBusEvent(ctx context.Context, ev eventbus.Event) error {
	if u, ok := ev.Payload.(models.UIUpdate); ok && u.Component == "connection" {
		st := c.conv.Timeline.Status()
		c.push(ServerFrame{Type: FrameStatus, Status: &st})
		return nil
	}
	c.push(ServerFrame{Type: FrameBus, Event: &ev})
	return nil
}

func (c *client) pushError(code, msg string) {
	c.push(ServerFrame{Type: FrameError, Error: &ErrorBody{Code: code, Message: msg}})
}

// push queues f, waiting for room unless the client is gone.
func (c *client) push(f ServerFrame) {
	select {
	case c.out <- f:
	case <-c.ctx.Done():
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing client")
				c.cancel()
				_ = c.conn.Close()
				return
			}
			c.metrics.RecordGatewayFrame("out", f.Type)

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
