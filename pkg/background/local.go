package background

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/fieldreport/pkg/logger"
)

// LocalDrainer runs drain passes inside the current process.
type LocalDrainer struct {
	logg *logger.Logger
	wake wake

	mu      sync.Mutex
	tags    map[string]struct{}
	running bool
}

func NewLocalDrainer(logg *logger.Logger) *LocalDrainer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LocalDrainer{logg: logg, wake: newWake(), tags: map[string]struct{}{}}
}

// ScheduleBackgroundDrain registers tag and wakes the loop. It fails with
// ErrUnavailable until Run has started so callers fall back.
func (d *LocalDrainer) ScheduleBackgroundDrain(_ context.Context, tag string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrUnavailable
	}
	d.tags[tag] = struct{}{}
	d.wake.notify()
	return nil
}

func (d *LocalDrainer) RequestImmediateDrain(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return ErrUnavailable
	}
	d.wake.notify()
	return nil
}

// Registered reports the tags waiting for the next pass.
func (d *LocalDrainer) Registered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.tags))
	for tag := range d.tags {
		out = append(out, tag)
	}
	return out
}

// Run invokes pass each time a drain is requested until ctx is done.
func (d *LocalDrainer) Run(ctx context.Context, pass PassFunc) error {
	if pass == nil {
		return errors.New("pass func required")
	}
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("drainer already running")
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
			d.mu.Lock()
			clear(d.tags)
			d.mu.Unlock()
			if err := pass(ctx); err != nil && ctx.Err() == nil {
				d.logg.Error(ctx, "background drain pass failed", err)
			}
		}
	}
}
