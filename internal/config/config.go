package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration, loaded from the environment.
type Configuration struct {
	Service       ServiceConfig
	Realtime      RealtimeConfig
	Session       SessionConfig
	Bus           BusConfig
	Catalog       CatalogConfig
	Kafka         KafkaConfig
	History       HistoryConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsPort string
}

// RealtimeConfig selects and configures the voice-AI transport.
type RealtimeConfig struct {
	Transport        string // openai, mock
	URL              string
	Model            string
	Voice            string
	TokenURL         string
	TokenTimeout     time.Duration
	HandshakeTimeout time.Duration

	// TranscriptionModel enables input audio transcription on the backend.
	TranscriptionModel string
	MockLatency        time.Duration
}

// SessionConfig holds the tunable timing windows of a session.
type SessionConfig struct {
	DeltaThrottle   time.Duration
	IdleFinalize    time.Duration
	DefaultLanguage string
	AutoGreet       bool
}

type BusConfig struct {
	MaxSubscribers int
	HistorySize    int
}

type CatalogConfig struct {
	Path string // empty uses the embedded catalog
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

type HistoryConfig struct {
	Backend     string // memory, redis
	RedisAddr   string
	TTL         time.Duration
	MaxMessages int
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from environment variables.
// Unparseable values fall back to their defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-commerce-assistant")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		Realtime: RealtimeConfig{
			Transport:          envOrDefault("REALTIME_TRANSPORT", "mock"),
			URL:                envOrDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			Model:              envOrDefault("REALTIME_MODEL", "gpt-realtime"),
			Voice:              envOrDefault("REALTIME_VOICE", "alloy"),
			TokenURL:           envOrDefault("REALTIME_TOKEN_URL", "http://localhost:3000/session"),
			TokenTimeout:       envOrDefaultDuration("REALTIME_TOKEN_TIMEOUT", 10*time.Second),
			HandshakeTimeout:   envOrDefaultDuration("REALTIME_HANDSHAKE_TIMEOUT", 15*time.Second),
			TranscriptionModel: envOrDefault("REALTIME_TRANSCRIPTION_MODEL", "whisper-1"),
			MockLatency:        envOrDefaultDuration("REALTIME_MOCK_LATENCY", 150*time.Millisecond),
		},
		Session: SessionConfig{
			DeltaThrottle:   envOrDefaultDuration("SESSION_DELTA_THROTTLE", 100*time.Millisecond),
			IdleFinalize:    envOrDefaultDuration("SESSION_IDLE_FINALIZE", 2000*time.Millisecond),
			DefaultLanguage: envOrDefault("SESSION_DEFAULT_LANGUAGE", "en"),
			AutoGreet:       envOrDefaultBool("SESSION_AUTO_GREET", true),
		},
		Bus: BusConfig{
			MaxSubscribers: envOrDefaultInt("BUS_MAX_SUBSCRIBERS", 100),
			HistorySize:    envOrDefaultInt("BUS_HISTORY_SIZE", 50),
		},
		Catalog: CatalogConfig{
			Path: os.Getenv("CATALOG_PATH"),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "conversation.message.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "conversation.message.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		History: HistoryConfig{
			Backend:     envOrDefault("HISTORY_BACKEND", "memory"),
			RedisAddr:   envOrDefault("REDIS_ADDR", "localhost:6379"),
			TTL:         envOrDefaultDuration("HISTORY_TTL", 24*time.Hour),
			MaxMessages: envOrDefaultInt("HISTORY_MAX_MESSAGES", 200),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
