package main

import (
	"errors"
	"strings"

	"github.com/angelmondragon/fieldreport/internal/cron"
	"github.com/angelmondragon/fieldreport/internal/syncer"
	"github.com/angelmondragon/fieldreport/pkg/background"
	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/metrics"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/redis"
)

// transport is how the agent hands drains to the background runtime and how
// sync results reach the UI.
type transport struct {
	drainer   background.Drainer
	publisher broadcast.Channel
	events    broadcast.Channel

	// set only when the agent drains in-process
	local *background.LocalDrainer
}

func newTransport(cfg *config.Config, logg *logger.Logger, client *redis.Client) (transport, error) {
	switch strings.ToLower(cfg.Sync.Transport) {
	case config.TransportRedis:
		if client == nil {
			return transport{}, errors.New("redis sync transport requires " + config.EnvRedisURL)
		}
		channel, err := broadcast.NewRedis(client, broadcast.DefaultChannel, logg)
		if err != nil {
			return transport{}, err
		}
		drainer, err := background.NewRedisDrainer(background.RedisDrainerParams{
			Store:   client,
			Channel: channel,
			Logger:  logg,
		})
		if err != nil {
			return transport{}, err
		}
		// the worker publishes results; the agent only listens so the feed
		// gets one notification per outcome
		return transport{drainer: drainer, events: channel}, nil
	default:
		bus := broadcast.NewMemory()
		local := background.NewLocalDrainer(logg)
		return transport{drainer: local, publisher: bus, events: bus, local: local}, nil
	}
}

func newCronService(cfg *config.Config, logg *logger.Logger, cronMetrics *metrics.CronJobMetrics, coordinator *syncer.Coordinator, outboxSvc *outbox.Service, client *redis.Client) (*cron.Service, error) {
	registry, err := cron.NewOutboxRegistry(cron.OutboxRegistryParams{
		Logger:     logg,
		Syncer:     coordinator,
		Outbox:     outboxSvc,
		StaleAfter: cfg.Sync.StaleAfter,
	})
	if err != nil {
		return nil, err
	}

	var lock cron.Lock = &cron.LocalLock{}
	if client != nil {
		lock, err = cron.NewRedisLock(client, client.LockKey("outbox-cron"), 3*cfg.Sync.PeriodicInterval)
		if err != nil {
			return nil, err
		}
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Sync.PeriodicInterval,
	})
}
