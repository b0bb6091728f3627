package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/fieldreport/api/controllers"
	"github.com/angelmondragon/fieldreport/api/routes"
	"github.com/angelmondragon/fieldreport/internal/reports"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/instance"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/migrate"
	"github.com/angelmondragon/fieldreport/pkg/outbox/idempotency"
	"github.com/angelmondragon/fieldreport/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "collector"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "collector"

	logg = logger.New(logger.Options{
		ServiceName: "collector",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	pingers := map[string]controllers.Pinger{"database": dbClient}
	var store redis.IdempotencyStore = idempotency.NewMemoryStore()
	if cfg.Redis.Enabled() {
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
		store = redisClient
		pingers["redis"] = redisClient
	}

	deduper, err := idempotency.NewManager(store, cfg.Eventing.DeliveredTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewCollectorRouter(routes.CollectorDeps{
			Config:   cfg,
			Logger:   logg,
			Pingers:  pingers,
			Gatherer: registry,
			Deduper:  deduper,
			Reports:  reports.NewRepository(dbClient.DB()),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"addr":        addr,
		"auth":        cfg.Collector.Secret != "",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting collector")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "collector shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "collector stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "collector shutting down gracefully")
}
