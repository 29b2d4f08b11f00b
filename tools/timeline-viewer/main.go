// Timeline Viewer - live view of conversation timelines.
// Consumes the partial and final timeline topics from Kafka and pushes them
// to browsers over WebSocket, grouped by session.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

//go:embed static/*
var staticFiles embed.FS

// TimelineEvent mirrors the service's published event.
type TimelineEvent struct {
	EventType string          `json:"eventType"`
	SessionID string          `json:"sessionId"`
	MessageID string          `json:"messageId"`
	Author    string          `json:"author"`
	Kind      string          `json:"kind"`
	Text      string          `json:"text"`
	Products  json.RawMessage `json:"products,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	Index     int             `json:"index"`
	Timestamp int64           `json:"timestamp"`
}

// Hub fans events out to connected browsers and remembers the latest
// version of each message so late joiners see the current timeline.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan TimelineEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	latest map[string]TimelineEvent
	order  []string
}

const replayLimit = 500

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan TimelineEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		latest:     make(map[string]TimelineEvent),
	}
}

func (h *Hub) remember(ev TimelineEvent) {
	if ev.MessageID == "" {
		// live user transcripts are transient
		return
	}
	key := ev.SessionID + "/" + ev.MessageID
	if _, ok := h.latest[key]; !ok {
		h.order = append(h.order, key)
		if len(h.order) > replayLimit {
			delete(h.latest, h.order[0])
			h.order = h.order[1:]
		}
	}
	h.latest[key] = ev
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			for _, key := range h.order {
				if err := conn.WriteJSON(h.latest[key]); err != nil {
					break
				}
			}
			h.mu.Unlock()
			log.Printf("Client connected. Total: %d", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total: %d", len(h.clients))

		case event := <-h.broadcast:
			h.mu.Lock()
			h.remember(event)
			for conn := range h.clients {
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// partition reader without a consumer group works better through port-forward
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Printf("Could not rewind %s, starting at the end: %v", topic, err)
	}

	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var event TimelineEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		log.Printf("Received %s [%s/%s] %s", event.EventType, event.SessionID, event.Author, truncate(event.Text, 40))
		hub.broadcast <- event
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "conversation.message.partial", "Streaming timeline topic")
	topicFinal := flag.String("topic-final", "conversation.message.final", "Finalized message topic")
	flag.Parse()

	hub := newHub()
	go hub.run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumeKafka(ctx, hub, *brokers, *topicPartial)
	go consumeKafka(ctx, hub, *brokers, *topicFinal)

	staticFS, _ := fs.Sub(staticFiles, "static")
	http.Handle("/", http.FileServer(http.FS(staticFS)))
	http.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Timeline Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s", *topicPartial, *topicFinal)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
