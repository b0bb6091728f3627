package background

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a drain capability is not wired.
var ErrUnavailable = errors.New("background drain unavailable")

// Drainer lets foreground code ask the background runtime to process the
// outbox. Both calls only register intent; they never deliver anything.
type Drainer interface {
	ScheduleBackgroundDrain(ctx context.Context, tag string) error
	RequestImmediateDrain(ctx context.Context) error
}

// PassFunc runs one drain pass.
type PassFunc func(ctx context.Context) error

// wake is a coalescing signal: any number of notifications before the
// consumer wakes up collapse into one.
type wake chan struct{}

func newWake() wake { return make(wake, 1) }

func (w wake) notify() {
	select {
	case w <- struct{}{}:
	default:
	}
}
