package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors reporting monitor activity.
type Metrics struct {
	taskDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	alerts       *prometheus.CounterVec
}

// MustNewMetrics constructs a Metrics instance on the provided registerer.
// Callers supply a fresh registry when unique metric names are required, as
// in tests. Registration errors other than AlreadyRegistered panic, matching
// promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridpilot",
			Subsystem: "monitor",
			Name:      "task_duration_seconds",
			Help:      "Duration of orchestration tasks by final status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	toolCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridpilot",
			Subsystem: "monitor",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and outcome.",
		},
		[]string{"tool", "status"},
	)
	toolDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gridpilot",
			Subsystem: "monitor",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	alerts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gridpilot",
			Subsystem: "monitor",
			Name:      "alerts_total",
			Help:      "Raised alerts by level.",
		},
		[]string{"level"},
	)

	for _, collector := range []prometheus.Collector{taskDuration, toolCalls, toolDuration, alerts} {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case taskDuration:
					taskDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case toolCalls:
					toolCalls = already.ExistingCollector.(*prometheus.CounterVec)
				case toolDuration:
					toolDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case alerts:
					alerts = already.ExistingCollector.(*prometheus.CounterVec)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		taskDuration: taskDuration,
		toolCalls:    toolCalls,
		toolDuration: toolDuration,
		alerts:       alerts,
	}
}

// ObserveTask records a finished task.
func (m *Metrics) ObserveTask(status string, durationMS int64) {
	if m == nil || m.taskDuration == nil {
		return
	}
	m.taskDuration.WithLabelValues(status).Observe(time.Duration(durationMS * int64(time.Millisecond)).Seconds())
}

// ObserveToolCall records one closed tool call.
func (m *Metrics) ObserveToolCall(tool, status string, durationMS int64) {
	if m == nil || m.toolCalls == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(time.Duration(durationMS * int64(time.Millisecond)).Seconds())
}

// ObserveAlert counts a raised alert.
func (m *Metrics) ObserveAlert(level string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(level).Inc()
}
