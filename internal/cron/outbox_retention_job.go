package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fieldreport/pkg/logger"
)

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Outbox deliveredPruner
}

type deliveredPruner interface {
	PruneDelivered(ctx context.Context) (int64, error)
}

// NewOutboxRetentionJob removes success rows left behind when the delete
// after a delivery did not go through.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox required")
	}
	return &outboxRetentionJob{logg: params.Logger, outbox: params.Outbox}, nil
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	outbox deliveredPruner
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.outbox.PruneDelivered(ctx)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "outbox retention cleanup complete")
	return nil
}
