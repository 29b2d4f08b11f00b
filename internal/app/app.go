package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"realtime-commerce-assistant/internal/config"
	"realtime-commerce-assistant/internal/events"
	"realtime-commerce-assistant/internal/history"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/catalog"
	"realtime-commerce-assistant/internal/service/token"
	"realtime-commerce-assistant/internal/service/transport"
	"realtime-commerce-assistant/internal/service/transport/mock"
	"realtime-commerce-assistant/internal/service/transport/openai"
)

const (
	TransportOpenAI = "openai"
	TransportMock   = "mock"
)

// Application holds process-wide state shared by every conversation.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Metrics     *metrics.Metrics
	Catalog     *catalog.Catalog
	Credentials token.Source
	Publisher   *events.Publisher
	History     history.Store

	historyBackend history.Backend
	newTransport   func() transport.Transport
}

// Option customizes an Application.
type Option func(*Application)

// WithMetrics replaces the process-wide metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Application) { a.Metrics = m }
}

// WithTransportFactory overrides the transport selected by configuration.
func WithTransportFactory(f func() transport.Transport) Option {
	return func(a *Application) { a.newTransport = f }
}

// New constructs the Application: logger, catalog, credentials, transport
// factory, history store and timeline publisher.
func New(cfg *config.Configuration, opts ...Option) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	a.Catalog = cat

	if a.newTransport == nil {
		if err := a.selectTransport(); err != nil {
			return nil, err
		}
	}

	if err := a.openHistory(); err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
		Metrics:      a.Metrics,
	})

	appLogger.Info().
		Int("products", cat.Len()).
		Str("transport", cfg.Realtime.Transport).
		Str("history", string(a.historyBackend)).
		Msg("Commerce assistant application created")
	return a, nil
}

func (a *Application) selectTransport() error {
	rt := a.Cfg.Realtime
	switch strings.ToLower(rt.Transport) {
	case TransportOpenAI:
		a.Credentials = token.NewClient(rt.TokenURL, rt.TokenTimeout)
		a.newTransport = func() transport.Transport {
			return openai.New(openai.Config{
				URL:                rt.URL,
				Model:              rt.Model,
				HandshakeTimeout:   rt.HandshakeTimeout,
				TranscriptionModel: rt.TranscriptionModel,
			})
		}
	case TransportMock:
		a.Credentials = token.Static("mock-credential")
		a.newTransport = func() transport.Transport {
			return mock.New(mock.Config{Latency: rt.MockLatency})
		}
	default:
		return fmt.Errorf("unknown realtime transport %q", rt.Transport)
	}
	return nil
}

func (a *Application) openHistory() error {
	hc := a.Cfg.History
	backend := history.Backend(strings.ToLower(hc.Backend))
	opts := []history.Option{
		history.WithTTL(hc.TTL),
		history.WithMaxMessages(hc.MaxMessages),
	}
	if backend == history.BackendRedis {
		opts = append(opts, history.WithRedisClient(redis.NewClient(&redis.Options{Addr: hc.RedisAddr})))
	}
	store, err := history.New(backend, opts...)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	a.History = store
	a.historyBackend = backend
	return nil
}

// setupLogger configures the global zerolog logger from the observability config.
func (a *Application) setupLogger() {
	obs := a.Cfg.Observability
	format := obs.LogFormat
	if os.Getenv("ENV") == "dev" {
		format = "console"
	}
	logging.Init(logging.Config{Level: strings.ToLower(obs.LogLevel), Format: format})

	a.Logger = log.With().
		Str("service", "realtime-commerce-assistant").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Commerce assistant starting")

	return nil
}

// Ready reports whether shared dependencies can serve traffic.
func (a *Application) Ready(ctx context.Context) error {
	if a.StartupTime.IsZero() {
		return fmt.Errorf("application not started")
	}
	_, err := a.History.Messages(ctx, "readiness-probe")
	return err
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Failed to close publisher")
	}
	if err := a.History.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Failed to close history store")
	}
	shutdownLogger.Info().Msg("Commerce assistant shutting down")
}
