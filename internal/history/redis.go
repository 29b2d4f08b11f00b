package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"realtime-commerce-assistant/internal/models"
)

const keyPrefix = "history:"

// RedisStore keeps each conversation as a Redis list of JSON messages.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration, maxMessages int) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, maxMessages: maxMessages}
}

// Append pushes msg, trims the list and refreshes the TTL in one transaction.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg models.Message) error {
	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode history message: %w", err)
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		if s.maxMessages > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	key := s.key(sessionID)
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	msgs := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("decode history message: %w", err)
		}
		msgs = append(msgs, m)
	}

	// refresh TTL on read; a failure only shortens retention
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return msgs, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return keyPrefix + sessionID
}
