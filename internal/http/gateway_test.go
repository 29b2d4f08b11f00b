package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"realtime-commerce-assistant/internal/app"
	"realtime-commerce-assistant/internal/config"
	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/conversation"
)

func testConfig() *config.Configuration {
	cfg := config.Load()
	cfg.Realtime.Transport = app.TransportMock
	cfg.Realtime.MockLatency = 0
	cfg.Session.AutoGreet = false
	cfg.Session.DeltaThrottle = 10 * time.Millisecond
	cfg.Kafka.Enabled = false
	cfg.History.Backend = "memory"
	cfg.Catalog.Path = ""
	return cfg
}

func newTestServer(t *testing.T) (*httptest.Server, *app.Application) {
	t.Helper()
	a, err := app.New(testConfig(), app.WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(func() {
		srv.Close()
		a.Shutdown()
	})
	return srv, a
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, f ClientFrame) {
	t.Helper()
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("write %s: %v", f.Type, err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(ServerFrame) bool) ServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f ServerFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(f) {
			return f
		}
	}
}

func isStatus(state string) func(ServerFrame) bool {
	return func(f ServerFrame) bool {
		return f.Type == FrameStatus && f.Status != nil && f.Status.State == state
	}
}

func TestGateway_Conversation(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "?session=gw-1&lang=es-ES")

	ready := readUntil(t, conn, "ready", func(f ServerFrame) bool { return f.Type == FrameReady })
	if ready.SessionID != "gw-1" {
		t.Errorf("expected session gw-1, got %q", ready.SessionID)
	}

	write(t, conn, ClientFrame{Type: FrameConnect})
	readUntil(t, conn, "connected status", isStatus(conversation.StatusConnected))

	write(t, conn, ClientFrame{Type: FrameSend, Text: "show me running shoes"})

	product := readUntil(t, conn, "product message", func(f ServerFrame) bool {
		return f.Type == FrameTimeline && f.Update.Message.Kind == models.KindProduct
	})
	if n := len(product.Update.Message.Products); n != 2 {
		t.Errorf("expected 2 recommended products, got %d", n)
	}

	final := readUntil(t, conn, "final agent text", func(f ServerFrame) bool {
		return f.Type == FrameTimeline &&
			f.Update.Type == conversation.UpdateFinalized &&
			f.Update.Message.Author == models.AuthorAgent
	})
	if got := final.Update.Message.Content; got != "Here are two running shoes I recommend." {
		t.Errorf("unexpected final agent text %q", got)
	}

	write(t, conn, ClientFrame{Type: FrameInteraction, Action: "click", Target: "RUN-001"})
	readUntil(t, conn, "interaction echo", func(f ServerFrame) bool {
		return f.Type == FrameBus && f.Event.Type == eventbus.UserInteraction
	})

	write(t, conn, ClientFrame{Type: FrameDisconnect})
	readUntil(t, conn, "disconnected status", isStatus(conversation.StatusDisconnected))

	resp, err := http.Get(srv.URL + "/v1/conversations/gw-1/messages")
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(body.Messages) != 3 {
		t.Fatalf("expected user, product and agent messages in history, got %d", len(body.Messages))
	}
	if body.Messages[0].Author != models.AuthorUser || body.Messages[0].Content != "show me running shoes" {
		t.Errorf("unexpected first history message %+v", body.Messages[0])
	}
}

func TestGateway_ResumeReplaysHistory(t *testing.T) {
	srv, a := newTestServer(t)
	stored := models.Message{ID: "old-1", Author: models.AuthorUser, Kind: models.KindText, Content: "earlier", Final: true}
	if err := a.History.Append(t.Context(), "gw-2", stored); err != nil {
		t.Fatal(err)
	}

	conn := dial(t, srv, "?session=gw-2")
	f := readUntil(t, conn, "history", func(f ServerFrame) bool { return f.Type == FrameHistory })
	if len(f.Messages) != 1 || f.Messages[0].ID != "old-1" {
		t.Errorf("unexpected history frame %+v", f.Messages)
	}
}

func TestGateway_CommandErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")
	readUntil(t, conn, "ready", func(f ServerFrame) bool { return f.Type == FrameReady })

	tests := []struct {
		frame ClientFrame
		code  string
	}{
		{ClientFrame{Type: FrameSend, Text: "   "}, "empty_message"},
		{ClientFrame{Type: FrameSend, Text: "hello"}, "send_failed"},
		{ClientFrame{Type: "dance"}, "unknown_frame"},
	}

	for _, tt := range tests {
		write(t, conn, tt.frame)
		f := readUntil(t, conn, tt.code, func(f ServerFrame) bool { return f.Type == FrameError })
		if f.Error.Code != tt.code {
			t.Errorf("expected error %s, got %s", tt.code, f.Error.Code)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	f := readUntil(t, conn, "bad_frame", func(f ServerFrame) bool { return f.Type == FrameError })
	if f.Error.Code != "bad_frame" {
		t.Errorf("expected bad_frame, got %s", f.Error.Code)
	}
}

func TestRouter_Endpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/liveness", http.StatusOK},
		{"/v1/readiness", http.StatusOK},
		{"/v1/catalog", http.StatusOK},
		{"/v1/catalog/run-001", http.StatusOK},
		{"/v1/catalog/NOPE-1", http.StatusNotFound},
		{"/v1/conversations/unknown/messages", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}
