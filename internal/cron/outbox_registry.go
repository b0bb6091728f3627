package cron

import (
	"time"

	"github.com/angelmondragon/fieldreport/pkg/logger"
)

const defaultRetentionEvery = 60

type outboxHousekeeper interface {
	staleRequeuer
	deliveredPruner
}

type OutboxRegistryParams struct {
	Logger     *logger.Logger
	Syncer     passRunner
	Outbox     outboxHousekeeper
	StaleAfter time.Duration
	// RetentionEvery is how many ticks pass between retention runs.
	RetentionEvery int
}

// NewOutboxRegistry wires the periodic drain and the stale requeue on every
// tick and the retention sweep every RetentionEvery ticks.
func NewOutboxRegistry(params OutboxRegistryParams) (*Registry, error) {
	drain, err := NewOutboxDrainJob(OutboxDrainJobParams{Logger: params.Logger, Syncer: params.Syncer})
	if err != nil {
		return nil, err
	}
	stale, err := NewOutboxStaleJob(OutboxStaleJobParams{Logger: params.Logger, Outbox: params.Outbox, StaleAfter: params.StaleAfter})
	if err != nil {
		return nil, err
	}
	retention, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: params.Logger, Outbox: params.Outbox})
	if err != nil {
		return nil, err
	}
	every := params.RetentionEvery
	if every <= 0 {
		every = defaultRetentionEvery
	}

	// stale first so a released claim is drained in the same tick
	registry := NewRegistry(stale, drain)
	registry.RegisterEvery(retention, every)
	return registry, nil
}
