package idempotency

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/redis"
)

type memoryValue struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a process-local IdempotencyStore for deployments without redis.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memoryValue
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memoryValue), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lookup(key)
	if !ok {
		return "", redis.Nil
	}
	return v.value, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	entry := memoryValue{value: toString(value)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = entry
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryStore) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{"fr", "idempotency", scope, id}, ":")
}

// lookup expects s.mu to be held.
func (s *MemoryStore) lookup(key string) (memoryValue, bool) {
	v, ok := s.data[key]
	if !ok {
		return memoryValue{}, false
	}
	if !v.expiresAt.IsZero() && !s.now().Before(v.expiresAt) {
		delete(s.data, key)
		return memoryValue{}, false
	}
	return v, true
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
