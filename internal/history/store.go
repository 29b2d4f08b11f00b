// Package history keeps the finalized messages of each conversation so a
// reconnecting client can replay its timeline.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-commerce-assistant/internal/models"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

const (
	defaultTTL         = 24 * time.Hour
	defaultMaxMessages = 200
)

var (
	ErrInvalidBackend = errors.New("invalid history backend")
	ErrInvalidConfig  = errors.New("invalid history configuration")
)

// Store persists finalized timeline messages per session. Reads and writes
// refresh the session's TTL. Only the newest MaxMessages are kept.
type Store interface {
	Append(ctx context.Context, sessionID string, msg models.Message) error
	Messages(ctx context.Context, sessionID string) ([]models.Message, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	maxMessages int
}

// WithRedisClient sets the client used by the redis backend.
func WithRedisClient(c *redis.Client) Option {
	return func(cfg *storeConfig) { cfg.redisClient = c }
}

// WithTTL sets how long an untouched conversation is retained.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *storeConfig) { cfg.ttl = ttl }
}

// WithMaxMessages caps the retained messages per conversation.
func WithMaxMessages(n int) Option {
	return func(cfg *storeConfig) { cfg.maxMessages = n }
}

// New creates a Store for backend.
func New(backend Backend, opts ...Option) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}
	if cfg.maxMessages <= 0 {
		cfg.maxMessages = defaultMaxMessages
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(cfg.ttl, cfg.maxMessages), nil
	case BackendRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.ttl, cfg.maxMessages), nil
	default:
		return nil, ErrInvalidBackend
	}
}

// truncate keeps the newest limit messages.
func truncate(msgs []models.Message, limit int) []models.Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}
