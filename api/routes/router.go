package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fieldreport/api/controllers"
	"github.com/angelmondragon/fieldreport/api/middleware"
	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	pkgredis "github.com/angelmondragon/fieldreport/pkg/redis"
)

// Deps is everything the local agent API serves.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer

	// optional; without it idempotent routes are not replayed
	Idempotency pkgredis.IdempotencyStore

	Submissions   controllers.Submitter
	Documents     controllers.DocumentUploader
	Outbox        controllers.OutboxReader
	Syncer        controllers.Retrier
	Connectivity  controllers.ConnectivityState
	Collector     controllers.ConnectionTester
	Notifications controllers.NotificationFeed
	Events        controllers.SyncEventSource
}

// NewRouter builds the agent API the form UI talks to.
func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	mountHealth(r, cfg, d.Pingers, logg)
	mountMetrics(r, d.Gatherer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(d.Idempotency, logg))

		r.Post("/submissions", controllers.Submit(d.Submissions, logg))
		r.Post("/documents", controllers.UploadDocuments(d.Documents, logg))

		r.Route("/outbox", func(r chi.Router) {
			r.Get("/", controllers.ListOutbox(d.Outbox, logg))
			r.Post("/retry", controllers.RetryOutbox(d.Syncer, logg))
			r.Delete("/{localId}", controllers.DeleteOutboxEntry(d.Outbox, logg))
		})

		r.Get("/sync/events", controllers.SyncEvents(d.Events, logg))
		r.Get("/connectivity", controllers.Connectivity(d.Connectivity, logg))
		r.Post("/collector/test", controllers.TestCollector(d.Collector, cfg.Collector.WebhookURL))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
		})
	})

	return r
}

// CollectorDeps wires the receiving side used for local testing and
// self-hosted deployments.
type CollectorDeps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Gatherer prometheus.Gatherer

	Deduper controllers.DeliveryDeduper
	Reports interface {
		controllers.ReportSink
		controllers.ReportLister
	}
}

func NewCollectorRouter(d CollectorDeps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	mountHealth(r, cfg, d.Pingers, logg)
	mountMetrics(r, d.Gatherer)

	r.Route("/collect", func(r chi.Router) {
		r.Use(middleware.DeliveryAuth(cfg.Collector, logg))
		r.Post("/report", controllers.ReceiveReport(d.Deduper, d.Reports, logg))
		r.Put("/report", controllers.ReceiveReport(d.Deduper, d.Reports, logg))
	})
	r.Get("/reports", controllers.ListReports(d.Reports, logg))

	return r
}

func mountHealth(r chi.Router, cfg *config.Config, pingers map[string]controllers.Pinger, logg *logger.Logger) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers, logg))
	})
}

func mountMetrics(r chi.Router, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		return
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
