package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors reporting orchestrator activity.
type Metrics struct {
	phaseDuration  *prometheus.HistogramVec
	orchestrations *prometheus.CounterVec
	active         prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. Created once to avoid duplicate
// registration panics when orchestrators are instantiated repeatedly.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance on the provided registerer.
// Supply a fresh registry when unique metric names are required, as in
// tests. Registration errors other than AlreadyRegistered panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	phaseDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridpilot",
			Subsystem: "orchestrator",
			Name:      "phase_duration_seconds",
			Help:      "Duration spent in each orchestration phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase", "status"},
	)
	orchestrations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridpilot",
			Subsystem: "orchestrator",
			Name:      "orchestrations_total",
			Help:      "Completed orchestration calls by outcome.",
		},
		[]string{"outcome"},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gridpilot",
			Subsystem: "orchestrator",
			Name:      "orchestrations_active",
			Help:      "Orchestration calls currently in flight.",
		},
	)

	for _, collector := range []prometheus.Collector{phaseDuration, orchestrations, active} {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case phaseDuration:
					phaseDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case orchestrations:
					orchestrations = already.ExistingCollector.(*prometheus.CounterVec)
				case active:
					active = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		phaseDuration:  phaseDuration,
		orchestrations: orchestrations,
		active:         active,
	}
}

// ObservePhase records one phase's duration and status.
func (m *Metrics) ObservePhase(phase, status string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// IncOrchestration counts a finished orchestration by outcome.
func (m *Metrics) IncOrchestration(outcome string) {
	if m == nil || m.orchestrations == nil {
		return
	}
	m.orchestrations.WithLabelValues(outcome).Inc()
}

// IncActive marks a call in flight.
func (m *Metrics) IncActive() {
	if m == nil || m.active == nil {
		return
	}
	m.active.Inc()
}

// DecActive marks a call finished.
func (m *Metrics) DecActive() {
	if m == nil || m.active == nil {
		return
	}
	m.active.Dec()
}
