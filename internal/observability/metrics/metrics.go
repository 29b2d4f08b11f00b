// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "commerce_assistant"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal      prometheus.Counter
	SessionsActive     prometheus.Gauge
	ConnectFailures    *prometheus.CounterVec
	ConnectDuration    prometheus.Histogram
	LanguageSwitches   *prometheus.CounterVec
	GreetingSuppressed prometheus.Counter

	// Transcript metrics
	UserTranscripts     *prometheus.CounterVec
	AgentDeltasReceived prometheus.Counter
	AgentDeltasEmitted  prometheus.Counter
	ResponsesCompleted  prometheus.Counter

	// Tool metrics
	ToolCalls   *prometheus.CounterVec
	UnknownSKUs prometheus.Counter

	// Timeline metrics
	TimelineMessages   *prometheus.CounterVec
	IdleFinalizations  prometheus.Counter
	OrderingInsertions prometheus.Counter

	// Event bus metrics
	BusEvents        *prometheus.CounterVec
	BusHandlerErrors *prometheus.CounterVec
	BusRejected      *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// History metrics
	HistoryWrites *prometheus.CounterVec

	// Gateway metrics
	GatewayClients prometheus.Gauge
	GatewayFrames  *prometheus.CounterVec

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of realtime sessions connected",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected realtime sessions",
		}),
		ConnectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Total number of failed connection attempts",
		}, []string{"stage"}),
		ConnectDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Time spent establishing a realtime session",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		LanguageSwitches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_switches_total",
			Help:      "Total number of detected spoken language switches",
		}, []string{"language"}),
		GreetingSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "greeting_transcripts_suppressed_total",
			Help:      "Total number of synthetic greeting transcripts suppressed",
		}),

		UserTranscripts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_transcripts_total",
			Help:      "Total number of user transcription updates forwarded",
		}, []string{"type"}),
		AgentDeltasReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_deltas_received_total",
			Help:      "Total number of agent transcript deltas received from the transport",
		}),
		AgentDeltasEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_deltas_emitted_total",
			Help:      "Total number of throttled agent delta callbacks invoked",
		}),
		ResponsesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_completed_total",
			Help:      "Total number of agent responses completed",
		}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of assistant tool invocations",
		}, []string{"tool", "outcome"}),
		UnknownSKUs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_skus_total",
			Help:      "Total number of SKUs referenced by tools but absent from the catalog",
		}),

		TimelineMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_messages_total",
			Help:      "Total number of messages added to conversation timelines",
		}, []string{"author", "kind"}),
		IdleFinalizations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_finalizations_total",
			Help:      "Total number of user transcripts finalized by the quiet window",
		}),
		OrderingInsertions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ordering_insertions_total",
			Help:      "Total number of user messages finalized ahead of an agent response",
		}),

		BusEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_total",
			Help:      "Total number of event bus emissions",
		}, []string{"type"}),
		BusHandlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_handler_errors_total",
			Help:      "Total number of event bus handler failures",
		}, []string{"type"}),
		BusRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_subscriptions_rejected_total",
			Help:      "Total number of subscriptions refused by the capacity guard",
		}, []string{"type"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HistoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "Total number of history store writes",
		}, []string{"backend", "status"}),

		GatewayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_clients_active",
			Help:      "Number of connected WebSocket clients",
		}),
		GatewayFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_frames_total",
			Help:      "Total number of WebSocket frames by direction and type",
		}, []string{"direction", "type"}),

		GRPCCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls served",
		}, []string{"method", "code"}),
	}
}

// RecordSessionConnected records a session reaching the connected state.
func (m *Metrics) RecordSessionConnected(durationSeconds float64) {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
	m.ConnectDuration.Observe(durationSeconds)
}

// RecordSessionClosed records a connected session ending.
func (m *Metrics) RecordSessionClosed() {
	m.SessionsActive.Dec()
}

// RecordConnectFailure records a failed connection attempt at the given stage.
func (m *Metrics) RecordConnectFailure(stage string) {
	m.ConnectFailures.WithLabelValues(stage).Inc()
}

// RecordLanguageSwitch records a detected language change.
func (m *Metrics) RecordLanguageSwitch(language string) {
	m.LanguageSwitches.WithLabelValues(language).Inc()
}

// RecordUserTranscript records a forwarded user transcription update.
func (m *Metrics) RecordUserTranscript(complete bool) {
	if complete {
		m.UserTranscripts.WithLabelValues("final").Inc()
		return
	}
	m.UserTranscripts.WithLabelValues("partial").Inc()
}

// RecordToolCall records a tool invocation outcome.
func (m *Metrics) RecordToolCall(tool, outcome string) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordTimelineMessage records a message appended to a timeline.
func (m *Metrics) RecordTimelineMessage(author, kind string) {
	m.TimelineMessages.WithLabelValues(author, kind).Inc()
}

// RecordBusEmit records a bus emission.
func (m *Metrics) RecordBusEmit(eventType string) {
	m.BusEvents.WithLabelValues(eventType).Inc()
}

// RecordBusHandlerError records a failing bus handler.
func (m *Metrics) RecordBusHandlerError(eventType string) {
	m.BusHandlerErrors.WithLabelValues(eventType).Inc()
}

// RecordBusRejected records a subscription refused by the capacity guard.
func (m *Metrics) RecordBusRejected(eventType string) {
	m.BusRejected.WithLabelValues(eventType).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHistoryWrite records a history append.
func (m *Metrics) RecordHistoryWrite(backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.HistoryWrites.WithLabelValues(backend, status).Inc()
}

// RecordGatewayFrame records a WebSocket frame; direction is "in" or "out".
func (m *Metrics) RecordGatewayFrame(direction, frameType string) {
	m.GatewayFrames.WithLabelValues(direction, frameType).Inc()
}

// RecordGRPCCall records a served gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
