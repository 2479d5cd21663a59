package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gridpilot/internal/shared/logging"
)

func newTestMonitor() (*Monitor, *Metrics) {
	metrics := MustNewMetrics(prometheus.NewRegistry())
	return New(metrics, logging.Nop()), metrics
}

func TestTaskLifecycle(t *testing.T) {
	m, _ := newTestMonitor()
	m.RegisterTools([]string{"read_range", "write_range"})

	m.StartTask("t1", "建一个表")
	m.StartPhase("t1", "parsing")
	m.CompletePhase("t1", "parsing")
	m.StartPhase("t1", "executing")
	m.StartToolCall("t1", "read_range", map[string]any{"range": "A1:B2"})
	m.CompleteToolCall("t1", "read_range", "rows")
	m.StartToolCall("t1", "write_range", nil)
	m.FailToolCall("t1", "write_range", "boom")
	m.CompletePhase("t1", "executing")
	m.CompleteTask("t1")

	task, ok := m.Task("t1")
	if !ok {
		t.Fatalf("task missing")
	}
	if task.Status != TaskCompleted {
		t.Fatalf("status = %s", task.Status)
	}
	if len(task.Phases) != 2 || task.Phases[0].Status != TaskCompleted {
		t.Fatalf("phases: %+v", task.Phases)
	}
	if len(task.ToolCalls) != 2 {
		t.Fatalf("tool calls: %d", len(task.ToolCalls))
	}
	if task.ToolCalls[0].Status != CallSuccess || task.ToolCalls[0].Output != "rows" {
		t.Fatalf("first call: %+v", task.ToolCalls[0])
	}
	if task.ToolCalls[1].Status != CallFailed || task.ToolCalls[1].Error != "boom" {
		t.Fatalf("second call: %+v", task.ToolCalls[1])
	}
	if task.Metrics.SuccessfulToolCalls != 1 || task.Metrics.FailedToolCalls != 1 {
		t.Fatalf("metrics: %+v", task.Metrics)
	}

	// Finishing twice must not double-count.
	m.FailTask("t1", "")
	stats := m.Statistics()
	if stats.TotalTasks != 1 || stats.CompletedTasks != 1 || stats.FailedTasks != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestNotFoundExcludedFromTallies(t *testing.T) {
	m, metrics := newTestMonitor()
	m.RegisterTools([]string{"read_range"})
	m.StartTask("t1", "query")

	m.StartToolCall("t1", "summon_demons", nil)
	// A completion for a not_found call must not resurrect it.
	m.CompleteToolCall("t1", "summon_demons", "out")

	task, _ := m.Task("t1")
	if len(task.ToolCalls) != 1 || task.ToolCalls[0].Status != CallNotFound {
		t.Fatalf("call: %+v", task.ToolCalls[0])
	}
	if task.Metrics.SuccessfulToolCalls != 0 || task.Metrics.FailedToolCalls != 0 {
		t.Fatalf("not_found polluted metrics: %+v", task.Metrics)
	}
	stats := m.Statistics()
	if len(stats.ToolUsageStats) != 0 {
		t.Fatalf("tallies: %+v", stats.ToolUsageStats)
	}
	if got := testutil.CollectAndCount(metrics.toolCalls); got != 0 {
		t.Fatalf("prometheus series = %d, want 0", got)
	}
}

func TestNoCatalogMeansNoNotFound(t *testing.T) {
	m, _ := newTestMonitor()
	m.StartTask("t1", "query")
	m.StartToolCall("t1", "anything", nil)
	task, _ := m.Task("t1")
	if task.ToolCalls[0].Status != CallRunning {
		t.Fatalf("empty catalog should not flag not_found: %+v", task.ToolCalls[0])
	}
}

func TestCheckConsistency(t *testing.T) {
	m, _ := newTestMonitor()
	m.RegisterTools([]string{"read_range", "write_range", "never_called"})
	m.StartTask("t1", "x")
	m.StartToolCall("t1", "read_range", nil)
	m.CompleteToolCall("t1", "read_range", "")
	m.StartToolCall("t1", "mystery_tool", nil)

	report := m.CheckConsistency()
	if len(report.UsedButNotRegistered) != 1 || report.UsedButNotRegistered[0] != "mystery_tool" {
		t.Fatalf("used-but-not-registered: %v", report.UsedButNotRegistered)
	}
	if len(report.RegisteredButNeverUsed) != 2 ||
		report.RegisteredButNeverUsed[0] != "never_called" ||
		report.RegisteredButNeverUsed[1] != "write_range" {
		t.Fatalf("registered-but-never-used: %v", report.RegisteredButNeverUsed)
	}
}

func TestAlerts(t *testing.T) {
	m, _ := newTestMonitor()
	var notified []Alert
	m.AddAlertListener(func(a Alert) { notified = append(notified, a) })

	m.Raise(AlertWarning, "slow_tool", "write_range is slow", nil)
	m.Raise(AlertCritical, "task_storm", "too many failures", map[string]any{"count": 9})

	if len(notified) != 2 {
		t.Fatalf("listener calls = %d", len(notified))
	}
	open := m.Unacknowledged()
	if len(open) != 2 {
		t.Fatalf("unacknowledged = %d", len(open))
	}
	m.Acknowledge(0)
	m.Acknowledge(99) // out of range, ignored
	open = m.Unacknowledged()
	if len(open) != 1 {
		t.Fatalf("after ack = %d", len(open))
	}
	if _, ok := open[1]; !ok {
		t.Fatalf("wrong alert acknowledged: %v", open)
	}

	// Statistics surface the most severe alerts first.
	stats := m.Statistics()
	if len(stats.TopAlerts) != 2 || stats.TopAlerts[0].Level != AlertCritical {
		t.Fatalf("top alerts: %+v", stats.TopAlerts)
	}
}

func TestFailTaskRaisesAlert(t *testing.T) {
	m, _ := newTestMonitor()
	m.StartTask("t1", "x")
	m.FailTask("t1", "one or more steps failed")

	open := m.Unacknowledged()
	if len(open) != 1 {
		t.Fatalf("alerts = %d", len(open))
	}
	for _, alert := range open {
		if alert.Code != "task_failed" || alert.Level != AlertError {
			t.Fatalf("alert: %+v", alert)
		}
	}
	stats := m.Statistics()
	if stats.FailedTasks != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestRecordFallback(t *testing.T) {
	m, _ := newTestMonitor()
	m.StartTask("t1", "x")
	m.RecordFallback("t1", "read_range", "read_selection", "invalid range")
	task, _ := m.Task("t1")
	if len(task.Fallbacks) != 1 || task.Metrics.FallbackCount != 1 {
		t.Fatalf("fallbacks: %+v", task.Fallbacks)
	}
	if task.Fallbacks[0].Fallback != "read_selection" {
		t.Fatalf("fallback: %+v", task.Fallbacks[0])
	}
}

func TestTaskRingEviction(t *testing.T) {
	m, _ := newTestMonitor()
	m.maxRecords = 2
	m.StartTask("t1", "a")
	m.StartTask("t2", "b")
	m.StartTask("t3", "c")

	if _, ok := m.Task("t1"); ok {
		t.Fatalf("oldest task should be evicted")
	}
	if _, ok := m.Task("t3"); !ok {
		t.Fatalf("newest task missing")
	}
	// Eviction keeps the ring bounded but the counter lifetime-total.
	if stats := m.Statistics(); stats.TotalTasks != 3 {
		t.Fatalf("total tasks = %d", stats.TotalTasks)
	}
}

func TestStatisticsAverages(t *testing.T) {
	m, _ := newTestMonitor()
	m.RegisterTools([]string{"read_range"})
	m.StartTask("t1", "x")
	for i := 0; i < 3; i++ {
		m.StartToolCall("t1", "read_range", nil)
		if i == 2 {
			m.FailToolCall("t1", "read_range", "boom")
		} else {
			m.CompleteToolCall("t1", "read_range", "")
		}
	}
	stats := m.Statistics()
	usage := stats.ToolUsageStats["read_range"]
	if usage == nil || usage.Calls != 3 || usage.Failures != 1 {
		t.Fatalf("usage: %+v", usage)
	}
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)
	if first.toolCalls != second.toolCalls {
		t.Fatalf("collectors not reused on re-registration")
	}
	second.ObserveToolCall("read_range", "success", 5)
	if got := testutil.ToFloat64(first.toolCalls.WithLabelValues("read_range", "success")); got != 1 {
		t.Fatalf("counter = %v", got)
	}
}
