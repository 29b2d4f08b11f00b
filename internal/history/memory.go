package history

import (
	"context"
	"sync"
	"time"

	"realtime-commerce-assistant/internal/models"
)

type memoryEntry struct {
	messages []models.Message
	expires  time.Time
}

// MemoryStore keeps history in process memory. Expired conversations are
// dropped lazily on access.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	ttl         time.Duration
	maxMessages int
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration, maxMessages int) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*memoryEntry),
		ttl:         ttl,
		maxMessages: maxMessages,
		now:         time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveLocked(sessionID)
	if e == nil {
		e = &memoryEntry{}
		s.sessions[sessionID] = e
	}
	e.messages = truncate(append(e.messages, msg), s.maxMessages)
	e.expires = s.now().Add(s.ttl)
	return nil
}

// Messages returns the stored messages, oldest first. An unknown or expired
// session yields an empty result.
func (s *MemoryStore) Messages(ctx context.Context, sessionID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveLocked(sessionID)
	if e == nil {
		return nil, nil
	}
	e.expires = s.now().Add(s.ttl)
	return append([]models.Message(nil), e.messages...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memoryEntry)
	return nil
}

func (s *MemoryStore) liveLocked(sessionID string) *memoryEntry {
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if s.now().After(e.expires) {
		delete(s.sessions, sessionID)
		return nil
	}
	return e
}
