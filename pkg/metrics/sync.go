package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks the outbox backlog and delivery outcomes.
type SyncMetrics struct {
	pending    prometheus.Gauge
	reachable  prometheus.Gauge
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	passes     *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldreport_outbox_pending",
		Help: "Undelivered outbox entries.",
	})
	reachable := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fieldreport_collector_reachable",
		Help: "1 when the last connectivity probe reached the collector.",
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldreport_deliveries_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"result", "trigger"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldreport_delivery_duration_seconds",
		Help:    "Duration of delivery attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldreport_sync_passes_total",
		Help: "Sync passes by trigger.",
	}, []string{"trigger"})
	reg.MustRegister(pending, reachable, deliveries, latency, passes)
	return &SyncMetrics{
		pending:    pending,
		reachable:  reachable,
		deliveries: deliveries,
		latency:    latency,
		passes:     passes,
	}
}

// SetPending records the current backlog size.
func (m *SyncMetrics) SetPending(count int64) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}

// SetReachable records the latest probe verdict.
func (m *SyncMetrics) SetReachable(ok bool) {
	if m == nil || m.reachable == nil {
		return
	}
	if ok {
		m.reachable.Set(1)
		return
	}
	m.reachable.Set(0)
}

// ObserveDelivery records one delivery attempt.
func (m *SyncMetrics) ObserveDelivery(result, trigger string, duration time.Duration) {
	if m == nil || m.deliveries == nil {
		return
	}
	result = normalizeLabel(result)
	m.deliveries.WithLabelValues(result, normalizeLabel(trigger)).Inc()
	m.latency.WithLabelValues(result).Observe(duration.Seconds())
}

// IncPass counts a sync pass.
func (m *SyncMetrics) IncPass(trigger string) {
	if m == nil || m.passes == nil {
		return
	}
	m.passes.WithLabelValues(normalizeLabel(trigger)).Inc()
}
