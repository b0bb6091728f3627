package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/pkg/redis"
)

// Manager remembers which submissions a receiver has already accepted, keyed
// by the client-generated local id. Keys follow the
// `fr:idempotency:delivered:<receiver>:<local_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard that remembers deliveries for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMarkDelivered returns true if localID was already accepted by
// receiver and otherwise records it.
func (m *Manager) CheckAndMarkDelivered(ctx context.Context, receiver string, localID uuid.UUID) (bool, error) {
	key, err := m.deliveredKey(receiver, localID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget drops the record so a later redelivery is processed again. Receivers
// call it when handling failed after the mark.
func (m *Manager) Forget(ctx context.Context, receiver string, localID uuid.UUID) error {
	key, err := m.deliveredKey(receiver, localID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) deliveredKey(receiver string, localID uuid.UUID) (string, error) {
	if receiver == "" {
		return "", errors.New("receiver name is required")
	}
	if localID == uuid.Nil {
		return "", errors.New("local id is required")
	}
	scope := fmt.Sprintf("delivered:%s", receiver)
	return m.store.IdempotencyKey(scope, localID.String()), nil
}
