package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/metrics"
)

var errBroker = errors.New("broker unavailable")

type fakeWriter struct {
	mu       sync.Mutex
	msgs     []kafka.Message
	writeErr error
	closeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeErr
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

// newFakePublisher returns a publisher writing to in-memory topics.
func newFakePublisher(principal string) (*Publisher, *fakeWriter, *fakeWriter, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{TopicPartial: "t.partial", TopicFinal: "t.final", Principal: principal, Metrics: m})
	partial, final := &fakeWriter{}, &fakeWriter{}
	p.partial.writer = partial
	p.final.writer = final
	return p, partial, final, m
}

func headerMap(msg kafka.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestNew_LogOnlyModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"nil brokers", &Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.partial.writer != nil || p.final.writer != nil {
				t.Error("expected no writers in log-only mode")
			}
			if err := p.Close(); err != nil {
				t.Errorf("expected clean close, got %v", err)
			}
		})
	}
}

func TestNew_EnabledBuildsKeyedWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "t.partial",
		TopicFinal:   "t.final",
		Metrics:      metrics.NewMetrics(prometheus.NewRegistry()),
	})
	defer p.Close()

	for _, r := range []route{p.partial, p.final} {
		w, ok := r.writer.(*kafka.Writer)
		if !ok {
			t.Fatalf("%s: expected *kafka.Writer, got %T", r.label, r.writer)
		}
		if w.Topic != r.topic {
			t.Errorf("%s: expected topic %s, got %s", r.label, r.topic, w.Topic)
		}
		if _, ok := w.Balancer.(*kafka.Hash); !ok {
			t.Errorf("%s: expected key hashing balancer, got %T", r.label, w.Balancer)
		}
	}
}

func TestPublisher_HeadersDerivedFromEvent(t *testing.T) {
	p, partial, final, _ := newFakePublisher("assistant-svc")

	ev := models.TimelineEvent{
		EventType: models.EventTypeMessageFinal,
		SessionID: "s-1",
		MessageID: "m-7",
		Author:    models.AuthorUser,
		Kind:      models.KindText,
		Text:      "I need running shoes",
	}
	if err := p.PublishFinal(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := partial.written(); len(got) != 0 {
		t.Fatalf("expected nothing on the partial topic, got %d", len(got))
	}
	msgs := final.written()
	if len(msgs) != 1 {
		t.Fatalf("expected one final record, got %d", len(msgs))
	}
	msg := msgs[0]
	if string(msg.Key) != "s-1" {
		t.Errorf("expected session key, got %q", msg.Key)
	}

	want := map[string]string{
		HeaderEventType: models.EventTypeMessageFinal,
		HeaderSessionID: "s-1",
		HeaderMessageID: "m-7",
		HeaderAuthor:    "user",
		HeaderKind:      "text",
		HeaderPrincipal: "assistant-svc",
	}
	got := headerMap(msg)
	if len(got) != len(want) {
		t.Errorf("expected %d headers, got %v", len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("header %s: expected %q, got %q", k, v, got[k])
		}
	}

	var decoded models.TimelineEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not a timeline event: %v", err)
	}
	if decoded.Text != ev.Text || decoded.MessageID != ev.MessageID {
		t.Errorf("unexpected value %+v", decoded)
	}
}

func TestPublisher_OmitsPrincipalHeaderWhenUnset(t *testing.T) {
	p, partial, _, _ := newFakePublisher("")

	ev := models.TimelineEvent{SessionID: "s-1", MessageID: "m-1", Author: models.AuthorAgent, Kind: models.KindText}
	if err := p.PublishPartial(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := headerMap(partial.written()[0])
	if _, ok := got[HeaderPrincipal]; ok {
		t.Errorf("expected no principal header, got %v", got)
	}
	// a missing event type takes the topic's
	if got[HeaderEventType] != models.EventTypeMessagePartial {
		t.Errorf("expected partial event type, got %q", got[HeaderEventType])
	}
	if got[HeaderAuthor] != "agent" {
		t.Errorf("expected agent author, got %q", got[HeaderAuthor])
	}
}

func TestPublisher_PublishRoutesByEventType(t *testing.T) {
	p, partial, final, m := newFakePublisher("")
	ctx := context.Background()

	evs := []models.TimelineEvent{
		{EventType: models.EventTypeMessagePartial, SessionID: "s", MessageID: "m1"},
		{EventType: models.EventTypeMessageFinal, SessionID: "s", MessageID: "m1"},
		{EventType: models.EventTypeMessagePartial, SessionID: "s", MessageID: "m2"},
	}
	for _, ev := range evs {
		if err := p.Publish(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if n := len(partial.written()); n != 2 {
		t.Errorf("expected 2 partial records, got %d", n)
	}
	if n := len(final.written()); n != 1 {
		t.Errorf("expected 1 final record, got %d", n)
	}
	if v := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("t.partial", "partial")); v != 2 {
		t.Errorf("expected 2 partial publishes recorded, got %v", v)
	}
	if v := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("t.final", "final")); v != 1 {
		t.Errorf("expected 1 final publish recorded, got %v", v)
	}
}

func TestPublisher_WriteFailureRecorded(t *testing.T) {
	p, _, final, m := newFakePublisher("")
	final.writeErr = errBroker

	err := p.PublishFinal(context.Background(), models.TimelineEvent{SessionID: "s", MessageID: "m"})
	if !errors.Is(err, errBroker) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if v := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("t.final", "final")); v != 1 {
		t.Errorf("expected one recorded failure, got %v", v)
	}
}

func TestPublisher_LogOnlyRecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := New(&Config{TopicFinal: "t.final", Metrics: m})

	ev := models.TimelineEvent{EventType: models.EventTypeMessageFinal, SessionID: "s", MessageID: "m"}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("t.final", "final")); v != 1 {
		t.Errorf("expected one recorded publish, got %v", v)
	}
}

func TestPublisher_CloseClosesBothWriters(t *testing.T) {
	p, partial, final, _ := newFakePublisher("")
	final.closeErr = errBroker

	err := p.Close()
	if !errors.Is(err, errBroker) {
		t.Errorf("expected close error to surface, got %v", err)
	}
	if !partial.closed || !final.closed {
		t.Error("expected both writers closed")
	}
}
