package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/logger"
)

const defaultStaleAfter = 2 * time.Minute

type OutboxStaleJobParams struct {
	Logger     *logger.Logger
	Outbox     staleRequeuer
	StaleAfter time.Duration
}

type staleRequeuer interface {
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NewOutboxStaleJob releases syncing claims held by a runner that died
// mid-delivery.
func NewOutboxStaleJob(params OutboxStaleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &outboxStaleJob{logg: params.Logger, outbox: params.Outbox, staleAfter: staleAfter}, nil
}

type outboxStaleJob struct {
	logg       *logger.Logger
	outbox     staleRequeuer
	staleAfter time.Duration
}

func (j *outboxStaleJob) Name() string { return "outbox-stale-requeue" }

func (j *outboxStaleJob) Run(ctx context.Context) error {
	requeued, err := j.outbox.RequeueStale(ctx, j.staleAfter)
	if err != nil {
		return fmt.Errorf("requeue stale: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_after_ms": j.staleAfter.Milliseconds(),
		"rows_requeued":  requeued,
	})
	j.logg.Info(logCtx, "stale syncing entries checked")
	return nil
}
