package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/banshee-data/radarloop/internal/timeutil"
)

// Metrics records stage durations, failures and counts in Prometheus
// collectors. A batch run has no scrape endpoint, so WriteTextfile dumps the
// registry for the node exporter's textfile collector.
type Metrics struct {
	reg   *prometheus.Registry
	clock timeutil.Clock

	StageDuration *prometheus.GaugeVec
	StageFailures *prometheus.CounterVec
	Counts        *prometheus.GaugeVec
	LastSuccess   prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics registers the collectors on a fresh registry labelled with site.
func NewMetrics(site string, clock timeutil.Clock) (*Metrics, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"site": site}

	m := &Metrics{
		reg:   reg,
		clock: clock,
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "radarloop_stage_duration_seconds",
			Help:        "Wall time spent in each pipeline stage during the last run.",
			ConstLabels: labels,
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "radarloop_stage_failures_total",
			Help:        "Pipeline stages that ended in a fatal error.",
			ConstLabels: labels,
		}, []string{"stage"}),
		Counts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "radarloop_items",
			Help:        "Item counts reported by the last run (listed, selected, frames...).",
			ConstLabels: labels,
		}, []string{"name"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "radarloop_last_success_timestamp_seconds",
			Help:        "Unix time of the last run that produced an animation.",
			ConstLabels: labels,
		}),
		started: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{m.StageDuration, m.StageFailures, m.Counts, m.LastSuccess} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry (for tests and textfile output).
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Begin(ctx context.Context, stage string) context.Context {
	m.mu.Lock()
	m.started[stage] = m.clock.Now()
	m.mu.Unlock()
	return ctx
}

func (m *Metrics) End(_ context.Context, stage string, err error) {
	m.mu.Lock()
	start, ok := m.started[stage]
	m.mu.Unlock()
	if ok {
		m.StageDuration.WithLabelValues(stage).Set(m.clock.Since(start).Seconds())
	}
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
		return
	}
	if stage == StageRun {
		m.LastSuccess.Set(float64(m.clock.Now().Unix()))
	}
}

func (m *Metrics) Count(_ context.Context, name string, n int) {
	m.Counts.WithLabelValues(name).Set(float64(n))
}

// WriteTextfile writes the registry in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// StageRun names the whole-run span reported around all other stages.
const StageRun = "RUN"
