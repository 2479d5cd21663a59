// Package monitor keeps an append-only audit of orchestration tasks: phase
// transitions, every tool call with its outcome, fallbacks, and aggregate
// statistics. Records live in a bounded ring; alerts notify listeners.
package monitor

import (
	"sort"
	"sync"
	"time"

	"gridpilot/internal/shared/logging"
)

// DefaultMaxRecords bounds the in-memory task ring.
const DefaultMaxRecords = 200

// TaskStatus is the coarse task state.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// CallStatus is the state of one tool call.
type CallStatus string

const (
	CallRunning  CallStatus = "running"
	CallSuccess  CallStatus = "success"
	CallFailed   CallStatus = "failed"
	CallNotFound CallStatus = "not_found"
)

// PhaseRecord is one named phase of a task.
type PhaseRecord struct {
	PhaseName string     `json:"phase_name"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

// ToolCall is one audited tool invocation.
type ToolCall struct {
	ToolName   string         `json:"tool_name"`
	Input      map[string]any `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	Status     CallStatus     `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// FallbackRecord notes a recovery substitution.
type FallbackRecord struct {
	Original string `json:"original"`
	Fallback string `json:"fallback"`
	Reason   string `json:"reason"`
}

// TaskMetrics aggregates one task's counters.
type TaskMetrics struct {
	TotalDurationMS     int64 `json:"total_duration_ms"`
	SuccessfulToolCalls int   `json:"successful_tool_calls"`
	FailedToolCalls     int   `json:"failed_tool_calls"`
	FallbackCount       int   `json:"fallback_count"`
}

// TaskRecord is the full audit of one orchestration task.
type TaskRecord struct {
	TaskID    string            `json:"task_id"`
	Request   string            `json:"request"`
	Status    TaskStatus        `json:"status"`
	Phases    []*PhaseRecord    `json:"phases,omitempty"`
	ToolCalls []*ToolCall       `json:"tool_calls,omitempty"`
	Fallbacks []*FallbackRecord `json:"fallbacks,omitempty"`
	Metrics   TaskMetrics       `json:"metrics"`
	StartedAt time.Time         `json:"started_at"`
}

// ToolUsage is the per-tool aggregate across tasks.
type ToolUsage struct {
	Calls         int     `json:"calls"`
	Failures      int     `json:"failures"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Statistics is the monitor-wide summary.
type Statistics struct {
	TotalTasks     int                   `json:"total_tasks"`
	CompletedTasks int                   `json:"completed_tasks"`
	FailedTasks    int                   `json:"failed_tasks"`
	ToolUsageStats map[string]*ToolUsage `json:"tool_usage_stats"`
	TopAlerts      []Alert               `json:"top_alerts,omitempty"`
}

// ConsistencyReport cross-checks the tool catalog against actual usage.
type ConsistencyReport struct {
	UsedButNotRegistered   []string `json:"used_but_not_registered,omitempty"`
	RegisteredButNeverUsed []string `json:"registered_but_never_used,omitempty"`
}

type toolTally struct {
	calls    int
	failures int
	totalMS  int64
}

// Monitor is the process-wide execution audit.
type Monitor struct {
	logger     logging.Logger
	maxRecords int
	metrics    *Metrics

	mu         sync.Mutex
	tasks      map[string]*TaskRecord
	order      []string
	registered map[string]bool
	tallies    map[string]*toolTally
	totalTasks int
	completed  int
	failed     int
	alerts     []Alert
	listeners  []AlertListener
}

// New builds a monitor. metrics may be nil to skip Prometheus export.
func New(metrics *Metrics, logger logging.Logger) *Monitor {
	return &Monitor{
		logger:     logging.OrNop(logger),
		maxRecords: DefaultMaxRecords,
		metrics:    metrics,
		tasks:      make(map[string]*TaskRecord),
		registered: make(map[string]bool),
		tallies:    make(map[string]*toolTally),
	}
}

// RegisterTools supplies the known tool catalog for not_found detection and
// consistency checks.
func (m *Monitor) RegisterTools(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		m.registered[name] = true
	}
}

// StartTask opens a task record, evicting the oldest when the ring is full.
func (m *Monitor) StartTask(taskID, request string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[taskID]; exists {
		return
	}
	m.tasks[taskID] = &TaskRecord{
		TaskID:    taskID,
		Request:   request,
		Status:    TaskRunning,
		StartedAt: time.Now().UTC(),
	}
	m.order = append(m.order, taskID)
	m.totalTasks++
	for len(m.order) > m.maxRecords {
		delete(m.tasks, m.order[0])
		m.order = m.order[1:]
	}
}

// StartPhase appends a running phase to the task.
func (m *Monitor) StartPhase(taskID, phaseName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task := m.tasks[taskID]; task != nil {
		task.Phases = append(task.Phases, &PhaseRecord{PhaseName: phaseName, Status: TaskRunning})
	}
}

// CompletePhase marks the latest matching phase completed.
func (m *Monitor) CompletePhase(taskID, phaseName string) {
	m.finishPhase(taskID, phaseName, TaskCompleted, "")
}

// FailPhase marks the latest matching phase failed.
func (m *Monitor) FailPhase(taskID, phaseName, errMsg string) {
	m.finishPhase(taskID, phaseName, TaskFailed, errMsg)
}

func (m *Monitor) finishPhase(taskID, phaseName string, status TaskStatus, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return
	}
	for i := len(task.Phases) - 1; i >= 0; i-- {
		if task.Phases[i].PhaseName == phaseName {
			task.Phases[i].Status = status
			task.Phases[i].Error = errMsg
			return
		}
	}
}

// StartToolCall records an invocation start. Calls against tools absent from
// the registered catalog are recorded as not_found and excluded from the
// success/failure tallies.
func (m *Monitor) StartToolCall(taskID, toolName string, input map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return
	}
	call := &ToolCall{
		ToolName:  toolName,
		Input:     input,
		Status:    CallRunning,
		StartedAt: time.Now().UTC(),
	}
	if len(m.registered) > 0 && !m.registered[toolName] {
		call.Status = CallNotFound
		call.FinishedAt = call.StartedAt
		m.logger.Warn("tool call against unregistered tool: %s", toolName)
	}
	task.ToolCalls = append(task.ToolCalls, call)
}

// CompleteToolCall closes the latest running call for the tool as success.
func (m *Monitor) CompleteToolCall(taskID, toolName, output string) {
	m.finishToolCall(taskID, toolName, CallSuccess, output, "")
}

// FailToolCall closes the latest running call for the tool as failed.
func (m *Monitor) FailToolCall(taskID, toolName, errMsg string) {
	m.finishToolCall(taskID, toolName, CallFailed, "", errMsg)
}

func (m *Monitor) finishToolCall(taskID, toolName string, status CallStatus, output, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return
	}
	for i := len(task.ToolCalls) - 1; i >= 0; i-- {
		call := task.ToolCalls[i]
		if call.ToolName != toolName || call.Status != CallRunning {
			continue
		}
		call.Status = status
		call.Output = output
		call.Error = errMsg
		call.FinishedAt = time.Now().UTC()

		durationMS := call.FinishedAt.Sub(call.StartedAt).Milliseconds()
		tally := m.tallies[toolName]
		if tally == nil {
			tally = &toolTally{}
			m.tallies[toolName] = tally
		}
		tally.calls++
		tally.totalMS += durationMS
		if status == CallFailed {
			tally.failures++
			task.Metrics.FailedToolCalls++
		} else {
			task.Metrics.SuccessfulToolCalls++
		}
		if m.metrics != nil {
			m.metrics.ObserveToolCall(toolName, string(status), durationMS)
		}
		return
	}
}

// RecordFallback notes a recovery substitution on the task.
func (m *Monitor) RecordFallback(taskID, original, fallback, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return
	}
	task.Fallbacks = append(task.Fallbacks, &FallbackRecord{Original: original, Fallback: fallback, Reason: reason})
	task.Metrics.FallbackCount++
}

// CompleteTask closes the task as completed.
func (m *Monitor) CompleteTask(taskID string) {
	m.finishTask(taskID, TaskCompleted)
}

// FailTask closes the task as failed.
func (m *Monitor) FailTask(taskID, errMsg string) {
	m.finishTask(taskID, TaskFailed)
	if errMsg != "" {
		m.Raise(AlertError, "task_failed", errMsg, map[string]any{"task_id": taskID})
	}
}

func (m *Monitor) finishTask(taskID string, status TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := m.tasks[taskID]
	if task == nil {
		return
	}
	if task.Status != TaskRunning {
		return
	}
	task.Status = status
	task.Metrics.TotalDurationMS = time.Since(task.StartedAt).Milliseconds()
	if status == TaskCompleted {
		m.completed++
	} else {
		m.failed++
	}
	if m.metrics != nil {
		m.metrics.ObserveTask(string(status), task.Metrics.TotalDurationMS)
	}
}

// Task returns a task record by id.
func (m *Monitor) Task(taskID string) (*TaskRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	return task, ok
}

// Statistics summarizes all observed tasks and tools.
func (m *Monitor) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Statistics{
		TotalTasks:     m.totalTasks,
		CompletedTasks: m.completed,
		FailedTasks:    m.failed,
		ToolUsageStats: make(map[string]*ToolUsage, len(m.tallies)),
	}
	for name, tally := range m.tallies {
		usage := &ToolUsage{Calls: tally.calls, Failures: tally.failures}
		if tally.calls > 0 {
			usage.AvgDurationMS = float64(tally.totalMS) / float64(tally.calls)
		}
		stats.ToolUsageStats[name] = usage
	}
	stats.TopAlerts = m.topAlertsLocked(5)
	return stats
}

// CheckConsistency reports tools used without registration and registered
// tools never seen in a call.
func (m *Monitor) CheckConsistency() ConsistencyReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	var report ConsistencyReport
	seen := make(map[string]bool)
	for _, id := range m.order {
		for _, call := range m.tasks[id].ToolCalls {
			seen[call.ToolName] = true
			if !m.registered[call.ToolName] {
				report.UsedButNotRegistered = appendUnique(report.UsedButNotRegistered, call.ToolName)
			}
		}
	}
	for name := range m.registered {
		if !seen[name] && m.tallies[name] == nil {
			report.RegisteredButNeverUsed = append(report.RegisteredButNeverUsed, name)
		}
	}
	sort.Strings(report.UsedButNotRegistered)
	sort.Strings(report.RegisteredButNeverUsed)
	return report
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
