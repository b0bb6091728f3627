package broadcast

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// Memory fans messages out to in-process subscribers. A subscriber that falls
// behind loses messages rather than blocking publishers.
type Memory struct {
	mu     sync.Mutex
	subs   map[int]chan Message
	nextID int
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int]chan Message)}
}

func (m *Memory) Publish(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context) (<-chan Message, func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan Message, subscriberBuffer)
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}
