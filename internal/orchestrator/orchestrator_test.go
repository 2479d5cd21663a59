package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"gridpilot/internal/config"
	"gridpilot/internal/intent"
	"gridpilot/internal/monitor"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/toolregistry"
	"gridpilot/internal/types"
)

// callCounter counts tool invocations per action across goroutines.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *callCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// newTestRegistry registers counting tools for every compiled action. failing
// names return a failure instead of success.
func newTestRegistry(t *testing.T, counter *callCounter, failing map[string]string) *toolregistry.Registry {
	t.Helper()
	r := toolregistry.New(logging.Nop())
	names := []string{
		types.ActionReadSelection, types.ActionReadRange, types.ActionWriteRange,
		types.ActionFormatRange, types.ActionAutofitRange, types.ActionClearRange,
		types.ActionSetFormula, types.ActionCreateSheet, types.ActionRespondToUser,
		types.ActionClarifyRequest,
	}
	for _, name := range names {
		name := name
		tool := types.NewTool(name, name, func(context.Context, map[string]any) (*types.ToolResult, error) {
			counter.inc(name)
			if errMsg, bad := failing[name]; bad {
				return &types.ToolResult{Success: false, Error: errMsg}, nil
			}
			return &types.ToolResult{Success: true, Output: name + " done"}, nil
		})
		if err := r.Register(tool, toolregistry.RegisterOptions{}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return r
}

func fixedLLM(reply string) intent.IntentLLM {
	return intent.LLMFunc(func(context.Context, string, string) (string, error) {
		return reply, nil
	})
}

func newTestOrchestrator(t *testing.T, counter *callCounter, llmReply string, failing map[string]string) *Orchestrator {
	t.Helper()
	return New(Deps{
		Registry: newTestRegistry(t, counter, failing),
		LLM:      fixedLLM(llmReply),
		Metrics:  MustNewMetrics(prometheus.NewRegistry()),
		Logger:   logging.Nop(),
	})
}

const createTableReply = `{"intent":"create_table","confidence":0.95,"spec":{"columns":["日期","金额"],"start_cell":"A1"}}`

func TestOrchestrateSuccess(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, nil)

	var phases []string
	opts := config.Defaults()
	opts.OnProgress = func(phase string, current, total int, message string) {
		phases = append(phases, phase)
	}

	result := o.Orchestrate(context.Background(), Request{Message: "建一个表格记录日期和金额"}, opts)

	if !result.Success {
		t.Fatalf("result: %+v", result)
	}
	if !strings.Contains(result.Reply, "✅ 操作完成") || !strings.Contains(result.Reply, "5/5") {
		t.Fatalf("reply = %q", result.Reply)
	}
	if result.Plan == nil || len(result.Plan.Steps) != 5 {
		t.Fatalf("plan: %+v", result.Plan)
	}
	if result.TaskID == "" || result.TraceID == "" {
		t.Fatalf("ids missing: %+v", result)
	}
	if counter.total() != 5 {
		t.Fatalf("tool invocations = %d, want 5", counter.total())
	}

	if len(phases) == 0 || phases[0] != PhaseParsing {
		t.Fatalf("phases: %v", phases)
	}
	sawExec, sawDone := false, false
	for _, phase := range phases {
		if phase == PhaseExecuting {
			sawExec = true
		}
		if phase == PhaseComplete {
			sawDone = true
		}
	}
	if !sawExec || !sawDone {
		t.Fatalf("phases: %v", phases)
	}

	task, ok := o.Monitor().Task(result.TaskID)
	if !ok || task.Status != monitor.TaskCompleted {
		t.Fatalf("task record: %+v", task)
	}
	if task.Metrics.SuccessfulToolCalls != 5 || task.Metrics.FailedToolCalls != 0 {
		t.Fatalf("task metrics: %+v", task.Metrics)
	}

	if _, ok := o.Tracer().Get(result.TraceID); !ok {
		t.Fatalf("trace %s not retained", result.TraceID)
	}
}

func TestOrchestrateClarification(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter,
		`{"intent":"clarify","confidence":0.9,"needs_clarification":true,"clarification_question":"您想操作哪个区域？"}`, nil)

	result := o.Orchestrate(context.Background(), Request{Message: "改一下"}, config.Defaults())

	if !result.Success || !result.NeedsClarification {
		t.Fatalf("result: %+v", result)
	}
	if result.Reply != "您想操作哪个区域？" {
		t.Fatalf("reply = %q", result.Reply)
	}
	if counter.total() != 0 {
		t.Fatalf("clarification must not invoke tools, got %d", counter.total())
	}
	if result.Plan != nil {
		t.Fatalf("clarification should not compile a plan")
	}
}

func TestOrchestrateValidationBlocked(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter,
		`{"intent":"delete_data","confidence":0.9,"spec":{"target":"A:Z"}}`, nil)

	result := o.Orchestrate(context.Background(), Request{Message: "清空所有数据"}, config.Defaults())

	if result.Success {
		t.Fatalf("blocked plan reported success")
	}
	if !strings.Contains(result.Reply, "计划未通过校验") {
		t.Fatalf("reply = %q", result.Reply)
	}
	if result.Validation == nil || result.Validation.CanProceed || len(result.Validation.Errors) == 0 {
		t.Fatalf("validation: %+v", result.Validation)
	}
	if counter.total() != 0 {
		t.Fatalf("blocked plan invoked %d tools", counter.total())
	}
	if result.Execution != nil {
		t.Fatalf("blocked plan should not execute")
	}
}

func TestOrchestratePartialFailure(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, map[string]string{
		types.ActionFormatRange: "mysterious failure",
	})

	result := o.Orchestrate(context.Background(), Request{Message: "建表"}, config.Defaults())

	if result.Success {
		t.Fatalf("partial run reported success")
	}
	if !strings.Contains(result.Reply, "⚠️ Partial: 2/5") {
		t.Fatalf("reply = %q", result.Reply)
	}
	if !strings.Contains(result.Reply, "mysterious failure") {
		t.Fatalf("reply lacks first error: %q", result.Reply)
	}
	exec := result.Execution
	if exec.SuccessCount != 2 || exec.FailedCount != 1 || exec.SkippedCount != 2 {
		t.Fatalf("execution: %+v", exec)
	}

	task, _ := o.Monitor().Task(result.TaskID)
	if task.Status != monitor.TaskFailed {
		t.Fatalf("task status = %s", task.Status)
	}
	if task.Metrics.FailedToolCalls != 1 {
		t.Fatalf("task metrics: %+v", task.Metrics)
	}
}

func TestOrchestrateCancellation(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, nil)

	cancel := make(chan struct{})
	close(cancel)
	opts := config.Defaults()
	opts.Cancel = cancel

	result := o.Orchestrate(context.Background(), Request{Message: "建表"}, opts)

	if !result.Cancelled || result.Success {
		t.Fatalf("result: %+v", result)
	}
	if !strings.Contains(result.Reply, "已取消") {
		t.Fatalf("reply = %q", result.Reply)
	}
	if counter.total() != 0 {
		t.Fatalf("cancelled before execution but %d tools ran", counter.total())
	}
	if !result.Execution.Cancelled || result.Execution.SkippedCount != 5 {
		t.Fatalf("execution: %+v", result.Execution)
	}
}

func TestOrchestrateUpdatesDiscoveryStats(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, nil)
	o.Orchestrate(context.Background(), Request{Message: "建表"}, config.Defaults())

	rate, ok := o.discovery.SuccessRate(types.ActionWriteRange)
	if !ok || rate != 1.0 {
		t.Fatalf("success rate = %v, ok = %v", rate, ok)
	}

	entry, ok := o.registry.Entry(types.ActionWriteRange)
	if !ok || entry.UsageCount != 1 {
		t.Fatalf("usage count = %d, ok = %v", entry.UsageCount, ok)
	}
	if entry.LastUsedAt.IsZero() {
		t.Fatalf("last used not stamped")
	}
}

func TestOrchestrateStream(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, nil)

	var chunks []types.Chunk
	for chunk := range o.OrchestrateStream(context.Background(), Request{Message: "建表"}, config.Defaults()) {
		chunks = append(chunks, chunk)
	}

	seen := map[types.ChunkType]bool{}
	for _, chunk := range chunks {
		seen[chunk.Type] = true
	}
	for _, kind := range []types.ChunkType{
		types.ChunkStatus, types.ChunkIntent, types.ChunkPlan,
		types.ChunkStepStart, types.ChunkStepDone, types.ChunkMessage,
	} {
		if !seen[kind] {
			t.Fatalf("chunk kind %s missing: %v", kind, chunkKinds(chunks))
		}
	}
	floor := 0
	for _, chunk := range chunks {
		if chunk.Progress < floor {
			t.Fatalf("progress went backwards: %d after %d (%s)", chunk.Progress, floor, chunk.Type)
		}
		if chunk.Progress > 100 {
			t.Fatalf("progress out of range: %d", chunk.Progress)
		}
		floor = chunk.Progress
	}

	last := chunks[len(chunks)-1]
	if last.Type != types.ChunkComplete {
		t.Fatalf("last chunk = %s", last.Type)
	}
	if last.Result == nil || !last.Result.Success {
		t.Fatalf("final result: %+v", last.Result)
	}
	if !strings.Contains(last.Message, "✅") {
		t.Fatalf("final message = %q", last.Message)
	}
}

func TestOrchestrateStreamCancelled(t *testing.T) {
	counter := newCallCounter()
	o := newTestOrchestrator(t, counter, createTableReply, nil)

	cancel := make(chan struct{})
	close(cancel)
	opts := config.Defaults()
	opts.Cancel = cancel

	var last types.Chunk
	for chunk := range o.OrchestrateStream(context.Background(), Request{Message: "建表"}, opts) {
		last = chunk
	}
	if last.Type != types.ChunkCancelled {
		t.Fatalf("last chunk = %s", last.Type)
	}
}

func TestOrchestrateCompileFailure(t *testing.T) {
	counter := newCallCounter()
	// write_data without data cannot be compiled.
	o := newTestOrchestrator(t, counter, `{"intent":"write_data","confidence":0.9,"spec":{"target":"A1"}}`, nil)

	result := o.Orchestrate(context.Background(), Request{Message: "写入"}, config.Defaults())
	if result.Success {
		t.Fatalf("compile failure reported success")
	}
	if !strings.Contains(result.Reply, "无法生成执行计划") {
		t.Fatalf("reply = %q", result.Reply)
	}
	if counter.total() != 0 {
		t.Fatalf("compile failure invoked tools")
	}
}

func chunkKinds(chunks []types.Chunk) []types.ChunkType {
	kinds := make([]types.ChunkType, len(chunks))
	for i, chunk := range chunks {
		kinds[i] = chunk.Type
	}
	return kinds
}
