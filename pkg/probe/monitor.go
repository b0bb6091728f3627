package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/metrics"
)

const defaultInterval = 5 * time.Second

// MonitorParams configure a Monitor.
type MonitorParams struct {
	Checker  Checker
	Interval time.Duration
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	// OnRestored runs when the collector becomes reachable after being unreachable.
	OnRestored func(ctx context.Context)
	// OnLost runs when the collector becomes unreachable, including on the
	// first observation.
	OnLost func(ctx context.Context)
}

// Monitor polls the checker and keeps the last known verdict.
type Monitor struct {
	checker    Checker
	interval   time.Duration
	logg       *logger.Logger
	metrics    *metrics.SyncMetrics
	onRestored func(ctx context.Context)
	onLost     func(ctx context.Context)

	mu       sync.Mutex
	observed bool
	online   bool
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Checker == nil {
		return nil, fmt.Errorf("checker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		checker:    params.Checker,
		interval:   interval,
		logg:       params.Logger,
		metrics:    params.Metrics,
		onRestored: params.OnRestored,
		onLost:     params.OnLost,
	}, nil
}

// Run checks immediately and then on every tick until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logg.Info(ctx, "connectivity monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check probes once, records the verdict and fires transition hooks.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.checker.Probe(ctx)
	m.metrics.SetReachable(online)

	m.mu.Lock()
	first := !m.observed
	changed := first || m.online != online
	m.observed = true
	m.online = online
	m.mu.Unlock()

	if !changed {
		return online
	}

	logCtx := m.logg.WithField(ctx, "online", online)
	switch {
	case online && !first:
		m.logg.Info(logCtx, "collector reachable again")
		if m.onRestored != nil {
			m.onRestored(ctx)
		}
	case !online:
		m.logg.Warn(logCtx, "collector unreachable; submissions will be queued")
		if m.onLost != nil {
			m.onLost(ctx)
		}
	default:
		m.logg.Info(logCtx, "collector reachable")
	}
	return online
}

// Online returns the last verdict; false until the first check completes.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observed && m.online
}

// Probe answers with a fresh check so the monitor can stand in for a Checker.
func (m *Monitor) Probe(ctx context.Context) bool {
	return m.Check(ctx)
}
