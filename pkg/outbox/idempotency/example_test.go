package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleReceiver struct {
	name    string
	manager *Manager
}

func (r *exampleReceiver) handle(ctx context.Context, localID uuid.UUID) string {
	already, _ := r.manager.CheckAndMarkDelivered(ctx, r.name, localID)
	if already {
		return "duplicate, acknowledged"
	}
	return "stored work report"
}

func ExampleManager_CheckAndMarkDelivered() {
	ctx := context.Background()
	manager, _ := NewManager(NewMemoryStore(), 7*24*time.Hour)
	receiver := &exampleReceiver{name: "collector", manager: manager}
	localID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	fmt.Println(receiver.handle(ctx, localID))
	fmt.Println(receiver.handle(ctx, localID))
	// Output:
	// stored work report
	// duplicate, acknowledged
}
