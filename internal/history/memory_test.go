package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/conversation"
)

func msg(id, content string) models.Message {
	return models.Message{ID: id, Author: models.AuthorUser, Kind: models.KindText, Content: content, Final: true}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name    string
		backend Backend
		opts    []Option
		wantErr error
	}{
		{"memory", BackendMemory, nil, nil},
		{"redis without client", BackendRedis, nil, ErrInvalidConfig},
		{"unknown", Backend("dynamo"), nil, ErrInvalidBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.backend, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && s == nil {
				t.Fatal("expected store")
			}
		})
	}
}

func TestMemoryStore_AppendAndRead(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	ctx := context.Background()

	_ = s.Append(ctx, "s1", msg("1", "hello"))
	_ = s.Append(ctx, "s1", msg("2", "any boots?"))
	_ = s.Append(ctx, "s2", msg("3", "other"))

	got, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("expected [1 2], got %+v", got)
	}

	if got, _ := s.Messages(ctx, "missing"); len(got) != 0 {
		t.Errorf("expected empty history for unknown session, got %d", len(got))
	}
}

func TestMemoryStore_TruncatesToNewest(t *testing.T) {
	s := NewMemoryStore(time.Hour, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_ = s.Append(ctx, "s1", msg(fmt.Sprint(i), "m"))
	}

	got, _ := s.Messages(ctx, "s1")
	if len(got) != 3 || got[0].ID != "3" || got[2].ID != "5" {
		t.Errorf("expected newest three messages, got %+v", got)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore(time.Minute, 10)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Append(ctx, "s1", msg("1", "hello"))

	now = now.Add(50 * time.Second)
	if got, _ := s.Messages(ctx, "s1"); len(got) != 1 {
		t.Fatal("expected history within ttl")
	}

	// the read above refreshed the ttl
	now = now.Add(50 * time.Second)
	if got, _ := s.Messages(ctx, "s1"); len(got) != 1 {
		t.Fatal("expected ttl refreshed on read")
	}

	now = now.Add(2 * time.Minute)
	if got, _ := s.Messages(ctx, "s1"); len(got) != 0 {
		t.Errorf("expected expired history, got %d messages", len(got))
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	ctx := context.Background()

	_ = s.Append(ctx, "s1", msg("1", "hello"))
	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := s.Messages(ctx, "s1"); len(got) != 0 {
		t.Error("expected history deleted")
	}
}

func TestRecorder_StoresOnlyFinalMessages(t *testing.T) {
	s := NewMemoryStore(time.Hour, 10)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	r := NewRecorder(s, BackendMemory, "s1", m)

	streaming := models.Message{ID: "a1", Author: models.AuthorAgent, Kind: models.KindText, Content: "Hel"}
	r.Listen(conversation.Update{Type: conversation.UpdateLive, Message: msg("", "typing"), Index: -1})
	r.Listen(conversation.Update{Type: conversation.UpdateAdded, Message: msg("u1", "hi")})
	r.Listen(conversation.Update{Type: conversation.UpdateAdded, Message: streaming, Index: 1})
	r.Listen(conversation.Update{Type: conversation.UpdateUpdated, Message: streaming, Index: 1})
	streaming.Content, streaming.Final = "Hello!", true
	r.Listen(conversation.Update{Type: conversation.UpdateFinalized, Message: streaming, Index: 1})

	got, _ := s.Messages(context.Background(), "s1")
	if len(got) != 2 {
		t.Fatalf("expected 2 stored messages, got %+v", got)
	}
	if got[0].ID != "u1" || got[1].Content != "Hello!" {
		t.Errorf("unexpected history %+v", got)
	}
	if v := testutil.ToFloat64(m.HistoryWrites.WithLabelValues("memory", "ok")); v != 2 {
		t.Errorf("expected 2 recorded writes, got %v", v)
	}
}
