// Package events publishes conversation timeline changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	batchTimeout = 10 * time.Millisecond
)

// Record header names. Consumers filter on these without decoding the value.
const (
	HeaderEventType = "eventType"
	HeaderSessionID = "sessionId"
	HeaderMessageID = "messageId"
	HeaderAuthor    = "author"
	HeaderKind      = "kind"
	HeaderPrincipal = "principal"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// route is one destination topic. A nil writer means log-only.
type route struct {
	label     string
	topic     string
	eventType string
	writer    messageWriter
}

// Publisher writes timeline events to Kafka: streaming changes to the
// partial topic, finalized messages to the final topic. Records are keyed
// by session so one conversation stays ordered on one partition.
type Publisher struct {
	partial   route
	final     route
	principal string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
	Metrics      *metrics.Metrics
}

// New creates a publisher. A nil or disabled config, or one without
// brokers, yields a log-only publisher.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		cfg = &Config{}
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	p := &Publisher{
		partial:   route{label: "partial", topic: cfg.TopicPartial, eventType: models.EventTypeMessagePartial},
		final:     route{label: "final", topic: cfg.TopicFinal, eventType: models.EventTypeMessageFinal},
		principal: cfg.Principal,
		metrics:   m,
		logger:    logging.WithComponent("timeline-publisher"),
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.logger.Info().
			Bool("enabled", cfg.Enabled).
			Int("brokers", len(cfg.Brokers)).
			Msg("Kafka off, timeline events are only logged")
		return p
	}

	// generous dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{Timeout: dialTimeout, DualStack: true}
	transport := &kafka.Transport{Dial: dialer.DialFunc}
	p.partial.writer = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.final.writer = newWriter(cfg.Brokers, cfg.TopicFinal, transport)

	p.logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Timeline publisher connected to Kafka")
	return p
}

func newWriter(brokers []string, topic string, t *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequireOne,
		Transport:    t,
	}
}

// Publish routes ev by its event type.
func (p *Publisher) Publish(ctx context.Context, ev models.TimelineEvent) error {
	if ev.EventType == models.EventTypeMessageFinal {
		return p.PublishFinal(ctx, ev)
	}
	return p.PublishPartial(ctx, ev)
}

// PublishPartial writes ev to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, ev models.TimelineEvent) error {
	return p.write(ctx, &p.partial, ev)
}

// PublishFinal writes ev to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, ev models.TimelineEvent) error {
	return p.write(ctx, &p.final, ev)
}

func (p *Publisher) write(ctx context.Context, r *route, ev models.TimelineEvent) error {
	start := time.Now()
	if ev.EventType == "" {
		ev.EventType = r.eventType
	}

	msg, err := p.record(ev)
	if err != nil {
		p.metrics.RecordKafkaPublish(r.topic, r.label, err, time.Since(start).Seconds())
		return err
	}

	logger := p.logger.With().
		Str("topic", r.topic).
		Str("sessionId", ev.SessionID).
		Str("messageId", ev.MessageID).
		Logger()

	if r.writer == nil {
		logger.Debug().RawJSON("event", msg.Value).Msg("Timeline event")
		p.metrics.RecordKafkaPublish(r.topic, r.label, nil, time.Since(start).Seconds())
		return nil
	}

	err = r.writer.WriteMessages(ctx, msg)
	if err != nil {
		logger.Error().Err(err).Str("eventType", ev.EventType).Msg("Failed to write timeline event")
	}
	p.metrics.RecordKafkaPublish(r.topic, r.label, err, time.Since(start).Seconds())
	return err
}

// record builds the Kafka record for ev.
func (p *Publisher) record(ev models.TimelineEvent) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode timeline event %s: %w", ev.MessageID, err)
	}
	return kafka.Message{
		Key:     []byte(ev.SessionID),
		Value:   value,
		Headers: headers(ev, p.principal),
	}, nil
}

func headers(ev models.TimelineEvent, principal string) []kafka.Header {
	hs := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(ev.EventType)},
		{Key: HeaderSessionID, Value: []byte(ev.SessionID)},
		{Key: HeaderMessageID, Value: []byte(ev.MessageID)},
		{Key: HeaderAuthor, Value: []byte(ev.Author)},
		{Key: HeaderKind, Value: []byte(ev.Kind)},
	}
	if principal != "" {
		hs = append(hs, kafka.Header{Key: HeaderPrincipal, Value: []byte(principal)})
	}
	return hs
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	var errs []error
	for _, r := range []*route{&p.partial, &p.final} {
		if r.writer == nil {
			continue
		}
		if err := r.writer.Close(); err != nil {
			p.logger.Error().Err(err).Str("topic", r.topic).Msg("Error closing Kafka writer")
			errs = append(errs, fmt.Errorf("close %s writer: %w", r.label, err))
		}
	}
	return errors.Join(errs...)
}
