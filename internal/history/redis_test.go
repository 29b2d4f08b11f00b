package history

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNew_RedisWithClient(t *testing.T) {
	s, err := New(BackendRedis, WithRedisClient(unreachableClient()), WithTTL(time.Minute), WithMaxMessages(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rs, ok := s.(*RedisStore)
	if !ok {
		t.Fatalf("expected *RedisStore, got %T", s)
	}
	if rs.ttl != time.Minute || rs.maxMessages != 5 {
		t.Errorf("options not applied: ttl=%v max=%d", rs.ttl, rs.maxMessages)
	}
	if got := rs.key("abc"); got != "history:abc" {
		t.Errorf("expected key history:abc, got %s", got)
	}
	_ = s.Close()
}

func TestRedisStore_UnreachableServer(t *testing.T) {
	s := NewRedisStore(unreachableClient(), 0, 10)
	defer s.Close()
	ctx := context.Background()

	if s.ttl != defaultTTL {
		t.Errorf("expected default ttl, got %v", s.ttl)
	}
	if err := s.Append(ctx, "s1", msg("1", "hello")); err == nil {
		t.Error("expected append to fail without a server")
	}
	if _, err := s.Messages(ctx, "s1"); err == nil {
		t.Error("expected read to fail without a server")
	}
}
