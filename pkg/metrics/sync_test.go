package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSyncMetricsExportsBacklogAndDeliveries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.SetPending(3)
	m.SetReachable(true)
	m.ObserveDelivery("success", "manual", 120*time.Millisecond)
	m.ObserveDelivery("failed", "", 80*time.Millisecond)
	m.IncPass("periodic")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	pending := findMetricFamily(mfs, "fieldreport_outbox_pending")
	if pending == nil || pending.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected pending gauge 3")
	}
	reachable := findMetricFamily(mfs, "fieldreport_collector_reachable")
	if reachable == nil || reachable.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected reachable gauge 1")
	}
	if got, err := fetchCounterValue(mfs, "fieldreport_deliveries_total", "trigger", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty trigger to normalize to unknown, got %f err=%v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "fieldreport_delivery_duration_seconds", "result", "success"); err != nil || got <= 0 {
		t.Fatalf("expected success latency, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "fieldreport_sync_passes_total", "trigger", "periodic"); err != nil || got != 1 {
		t.Fatalf("expected one periodic pass, got %f err=%v", got, err)
	}
}

func TestSyncMetricsNilSafe(t *testing.T) {
	var m *SyncMetrics
	m.SetPending(1)
	m.SetReachable(false)
	m.ObserveDelivery("success", "manual", time.Second)
	m.IncPass("manual")

	unregistered := NewSyncMetrics(nil)
	unregistered.SetPending(1)
	unregistered.ObserveDelivery("failed", "periodic", time.Second)
}
