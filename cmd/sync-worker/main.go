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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fieldreport/internal/cron"
	"github.com/angelmondragon/fieldreport/internal/syncer"
	"github.com/angelmondragon/fieldreport/pkg/background"
	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	"github.com/angelmondragon/fieldreport/pkg/collector"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/instance"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/metrics"
	"github.com/angelmondragon/fieldreport/pkg/migrate"
	"github.com/angelmondragon/fieldreport/pkg/outbox"
	"github.com/angelmondragon/fieldreport/pkg/probe"
	"github.com/angelmondragon/fieldreport/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Device:      instance.GetID(),
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeAutoRun(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	syncMetrics := metrics.NewSyncMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	channel, err := broadcast.NewRedis(redisClient, broadcast.DefaultChannel, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to open sync channel", err)
		os.Exit(1)
	}
	drainer, err := background.NewRedisDrainer(background.RedisDrainerParams{
		Store:   redisClient,
		Channel: channel,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create drainer", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	coordinator, err := syncer.NewCoordinator(syncer.Params{
		Outbox:      outboxSvc,
		Deliverer:   collector.NewClient(cfg.Collector),
		Checker:     probe.NewProber(cfg.Probe.Target(cfg.Collector), cfg.Probe.Timeout),
		Logger:      logg,
		Publisher:   channel,
		Metrics:     syncMetrics,
		Concurrency: cfg.Sync.Concurrency,
		MaxAttempts: cfg.Sync.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync coordinator", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Drainer: drainer,
		Syncer:  coordinator,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	cronService, err := newCronService(cfg, logg, cronMetrics, coordinator, outboxSvc, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	g.Go(func() error { return cronService.Run(gctx) })
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
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
	lock, err := cron.NewRedisLock(client, client.LockKey("outbox-cron"), 3*cfg.Sync.PeriodicInterval)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Sync.PeriodicInterval,
	})
}
