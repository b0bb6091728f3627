package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fieldreport/internal/syncer"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

type OutboxDrainJobParams struct {
	Logger *logger.Logger
	Syncer passRunner
}

type passRunner interface {
	RunPass(ctx context.Context, trigger enums.SyncTrigger) (syncer.PassResult, error)
}

// NewOutboxDrainJob runs a periodic sync pass.
func NewOutboxDrainJob(params OutboxDrainJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	return &outboxDrainJob{logg: params.Logger, syncer: params.Syncer}, nil
}

type outboxDrainJob struct {
	logg   *logger.Logger
	syncer passRunner
}

func (j *outboxDrainJob) Name() string { return "outbox-drain" }

func (j *outboxDrainJob) Run(ctx context.Context) error {
	result, err := j.syncer.RunPass(ctx, enums.SyncTriggerPeriodic)
	if err != nil {
		return fmt.Errorf("periodic sync: %w", err)
	}
	if result.Offline {
		j.logg.Info(ctx, "collector offline; periodic sync deferred")
	}
	return nil
}
