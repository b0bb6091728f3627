package notifications

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/angelmondragon/fieldreport/pkg/pagination"
)

const defaultFeedSize = 100

// Notification is one user-facing toast.
type Notification struct {
	ID        uuid.UUID               `json:"id"`
	Kind      enums.NotificationKind  `json:"kind"`
	Level     enums.NotificationLevel `json:"level"`
	Message   string                  `json:"message"`
	LocalID   string                  `json:"localId,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
	ReadAt    *time.Time              `json:"readAt,omitempty"`
}

// feed is a bounded in-memory store; the oldest notification is evicted once
// it is full.
type feed struct {
	mu    sync.Mutex
	size  int
	items []Notification
}

func newFeed(size int) *feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &feed{size: size}
}

func (f *feed) add(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.size; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
}

type listQuery struct {
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

// list returns newest first, up to q.Limit rows older than the cursor.
func (f *feed) list(q listQuery) ([]Notification, *pagination.Cursor) {
	f.mu.Lock()
	snapshot := make([]Notification, len(f.items))
	copy(snapshot, f.items)
	f.mu.Unlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		return pagination.Newer(snapshot[i].CreatedAt, snapshot[i].ID, snapshot[j].CreatedAt, snapshot[j].ID)
	})

	rows := make([]Notification, 0, q.Limit)
	for _, n := range snapshot {
		if q.UnreadOnly && n.ReadAt != nil {
			continue
		}
		if q.Cursor != nil && !q.Cursor.Admits(n.CreatedAt, n.ID) {
			continue
		}
		rows = append(rows, n)
		if len(rows) == q.Limit {
			break
		}
	}

	var next *pagination.Cursor
	if q.Limit > 1 && len(rows) == q.Limit {
		rows = rows[:q.Limit-1]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return rows, next
}

func (f *feed) markRead(id uuid.UUID, now time.Time) (found bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if f.items[i].ReadAt == nil {
			at := now
			f.items[i].ReadAt = &at
		}
		return true
	}
	return false
}

func (f *feed) markAllRead(now time.Time) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for i := range f.items {
		if f.items[i].ReadAt == nil {
			at := now
			f.items[i].ReadAt = &at
			count++
		}
	}
	return count
}

