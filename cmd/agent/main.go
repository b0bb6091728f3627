package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldreport/api/controllers"
	"github.com/angelmondragon/fieldreport/api/routes"
	"github.com/angelmondragon/fieldreport/internal/notifications"
	"github.com/angelmondragon/fieldreport/internal/submission"
	"github.com/angelmondragon/fieldreport/internal/syncer"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/enums"
	"github.com/angelmondragon/fieldreport/pkg/instance"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/metrics"
	"github.com/angelmondragon/fieldreport/pkg/migrate"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/outbox/idempotency"
	"github.com/angelmondragon/fieldreport/pkg/probe"
	"github.com/angelmondragon/fieldreport/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "agent"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "agent"

	logg = logger.New(logger.Options{
		ServiceName: "agent",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Device:      instance.GetID(),
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "agent stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	pingers := map[string]controllers.Pinger{"database": dbClient}
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		pingers["redis"] = redisClient
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	syncMetrics := metrics.NewSyncMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	collectorClient := collector.NewClient(cfg.Collector)
	feed := notifications.NewService(cfg.Notifications.FeedSize, logg)

	transport, err := newTransport(cfg, logg, redisClient)
	if err != nil {
		return err
	}

	coordinator, err := syncer.NewCoordinator(syncer.Params{
		Outbox:    outboxSvc,
		Deliverer: collectorClient,
		// the raw prober: the monitor's hooks call back into the coordinator
		Checker:     probe.NewProber(cfg.Probe.Target(cfg.Collector), cfg.Probe.Timeout),
		Logger:      logg,
		Drainer:     transport.drainer,
		Publisher:   transport.publisher,
		Notifier:    feed,
		Metrics:     syncMetrics,
		Concurrency: cfg.Sync.Concurrency,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err != nil {
		return err
	}

	monitor, err := probe.NewMonitor(probe.MonitorParams{
		Checker:    probe.NewProber(cfg.Probe.Target(cfg.Collector), cfg.Probe.Timeout),
		Interval:   cfg.Probe.Interval,
		Logger:     logg,
		Metrics:    syncMetrics,
		OnRestored: coordinator.ConnectivityRestored,
		OnLost:     coordinator.ConnectivityLost,
	})
	if err != nil {
		return err
	}

	submissions, err := submission.NewService(submission.Params{
		Outbox:       outboxSvc,
		Deliverer:    collectorClient,
		Checker:      monitor,
		Syncer:       coordinator,
		Notifier:     feed,
		Logger:       logg,
		DocumentsURL: cfg.Collector.WebhookURL,
		BatchSize:    cfg.Upload.BatchSize,
		BatchPause:   cfg.Upload.BatchPause,
	})
	if err != nil {
		return err
	}

	var idempotencyStore redis.IdempotencyStore = idempotency.NewMemoryStore()
	if redisClient != nil {
		idempotencyStore = redisClient
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Pingers:       pingers,
			Gatherer:      registry,
			Idempotency:   idempotencyStore,
			Submissions:   submissions,
			Documents:     submissions,
			Outbox:        outboxSvc,
			Syncer:        coordinator,
			Connectivity:  monitor,
			Collector:     collectorClient,
			Notifications: feed,
			Events:        transport.events,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"addr":        addr,
		"transport":   cfg.Sync.Transport,
	})
	logg.Info(ctx, "starting agent")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Run(gctx) })

	if transport.local != nil {
		// the in-process runtime owns draining and housekeeping
		g.Go(func() error {
			return transport.local.Run(gctx, func(ctx context.Context) error {
				_, err := coordinator.RunPass(ctx, enums.SyncTriggerBackground)
				return err
			})
		})
		cronService, err := newCronService(cfg, logg, cronMetrics, coordinator, outboxSvc, redisClient)
		if err != nil {
			return err
		}
		g.Go(func() error { return cronService.Run(gctx) })
	} else {
		// results from the sync worker arrive on the shared channel
		msgs, cancel, err := transport.events.Subscribe(gctx)
		if err != nil {
			return err
		}
		defer cancel()
		g.Go(func() error {
			coordinator.Listen(gctx, msgs)
			return nil
		})
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// queued reports from a previous run go out as soon as the loops are up
	go func() {
		if err := coordinator.RequestSync(gctx, enums.SyncTriggerConnectivity); err != nil && gctx.Err() == nil {
			logg.Warn(logg.WithField(gctx, "error", err.Error()), "startup sync request failed")
		}
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "agent shutting down gracefully")
	return nil
}
