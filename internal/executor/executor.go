// Package executor runs a validated plan as a DAG with bounded parallelism.
// Ready steps execute in batches; failures consult the recovery manager and
// then propagate skips through dependents. Placeholder parameters referencing
// upstream outputs are resolved immediately before each invocation.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gridpilot/internal/recovery"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

// DefaultMaxConcurrency bounds one batch when the caller does not.
const DefaultMaxConcurrency = 5

// previousPlaceholder resolves to the output of the step's last dependency.
const previousPlaceholder = "{{previous}}"

// EventKind tags executor lifecycle events.
type EventKind string

const (
	EventBatchStart   EventKind = "batch:start"
	EventStepStart    EventKind = "step:start"
	EventStepComplete EventKind = "step:complete"
	EventStepError    EventKind = "step:error"
	EventStepRecovery EventKind = "step:recovery"
	EventStepSkip     EventKind = "step:skip"
	EventComplete     EventKind = "complete"
)

// Event is one executor lifecycle notification. Emission is serialized, so
// listeners never see interleaved events even for parallel batches.
type Event struct {
	Kind      EventKind              `json:"kind"`
	StepID    string                 `json:"step_id,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Input     map[string]any         `json:"input,omitempty"`
	Output    string                 `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Recovery  string                 `json:"recovery,omitempty"`
	Batch     int                    `json:"batch,omitempty"`
	BatchSize int                    `json:"batch_size,omitempty"`
	Result    *types.ExecutionResult `json:"result,omitempty"`
}

// ToolSource resolves an action name to a runnable tool. *toolregistry.Registry
// satisfies this.
type ToolSource interface {
	Get(name string) (types.Tool, bool)
}

// Options tunes one execution run.
type Options struct {
	// MaxConcurrency caps one batch; <=0 means DefaultMaxConcurrency.
	MaxConcurrency int
	// ContinueOnFailure keeps independent branches running after a failure.
	ContinueOnFailure bool
	// DisableRecovery runs without consulting the recovery manager.
	DisableRecovery bool
	// OnEvent receives serialized lifecycle events; may be nil.
	OnEvent func(Event)
	// Cancel requests a cooperative stop; checked between batches.
	Cancel <-chan struct{}
}

// Executor runs plans against a tool source, optionally consulting a
// recovery manager on failures.
type Executor struct {
	tools    ToolSource
	recovery *recovery.Manager
	logger   logging.Logger
}

// New builds an executor. recov may be nil to disable recovery.
func New(tools ToolSource, recov *recovery.Manager, logger logging.Logger) *Executor {
	return &Executor{tools: tools, recovery: recov, logger: logging.OrNop(logger)}
}

// Execute runs the plan's steps to completion, cancellation, or early abort.
// The returned result always satisfies success+failed+skipped == total.
func (e *Executor) Execute(ctx context.Context, plan *types.ExecutionPlan, opts Options) *types.ExecutionResult {
	start := time.Now()
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if e.recovery != nil {
		e.recovery.ResetRetryCount("")
	}

	run := &runState{
		executor: e,
		opts:     opts,
		outputs:  make(map[string]string),
	}

	var steps []*types.Step
	if plan != nil {
		steps = plan.Steps
	}
	if len(steps) == 0 {
		result := &types.ExecutionResult{Success: true, StepResults: map[string]*types.StepResult{}}
		run.emit(Event{Kind: EventComplete, Result: result})
		return result
	}

	graph, err := buildDAG(steps)
	if err != nil {
		// A malformed graph fails the whole run before any tool fires.
		e.logger.Warn("plan %s rejected: %v", plan.ID, err)
		result := &types.ExecutionResult{
			TotalSteps:  len(steps),
			FailedCount: len(steps),
			StepResults: make(map[string]*types.StepResult, len(steps)),
		}
		for _, step := range steps {
			result.StepResults[step.ID] = &types.StepResult{Error: err.Error()}
		}
		result.TotalDurationMS = time.Since(start).Milliseconds()
		run.emit(Event{Kind: EventComplete, Error: err.Error(), Result: result})
		return result
	}
	run.graph = graph

	batches := 0
	batchedSteps := 0
	maxBatch := 0
	cancelled := false
	aborted := false

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		default:
		}
		if opts.Cancel != nil {
			select {
			case <-opts.Cancel:
				cancelled = true
				break loop
			default:
			}
		}

		ready := graph.readyNodes()
		if len(ready) == 0 {
			break
		}
		if len(ready) > opts.MaxConcurrency {
			ready = ready[:opts.MaxConcurrency]
		}
		batches++
		batchedSteps += len(ready)
		if len(ready) > maxBatch {
			maxBatch = len(ready)
		}
		run.emit(Event{Kind: EventBatchStart, Batch: batches, BatchSize: len(ready)})

		group, groupCtx := errgroup.WithContext(ctx)
		for _, node := range ready {
			node.Status = types.StepRunning
			node := node
			group.Go(func() error {
				run.runNode(groupCtx, node)
				return nil
			})
		}
		group.Wait() //nolint:errcheck // step errors surface through node results

		for _, node := range ready {
			if node.Status != types.StepFailed {
				continue
			}
			if node.Result != nil && node.Result.RecoveryAction == string(types.RecoveryAbort) {
				aborted = true
			}
			for _, id := range graph.skipDependents(node.Step.ID) {
				dep := graph.nodes[id]
				dep.Result = &types.StepResult{Error: fmt.Sprintf("dependency %s failed", node.Step.ID)}
				run.emit(Event{Kind: EventStepSkip, StepID: id, Reason: dep.Result.Error})
			}
			if !opts.ContinueOnFailure || aborted {
				break loop
			}
		}
	}

	result := run.collect(graph, cancelled)
	result.TotalDurationMS = time.Since(start).Milliseconds()
	result.Parallelism = types.ParallelismStats{MaxConcurrent: maxBatch, Batches: batches}
	if batches > 0 {
		result.Parallelism.AvgConcurrent = float64(batchedSteps) / float64(batches)
	}
	run.emit(Event{Kind: EventComplete, Result: result})
	return result
}

// runState is per-run mutable context shared by batch goroutines.
type runState struct {
	executor *Executor
	opts     Options
	graph    *dag

	mu      sync.Mutex
	outputs map[string]string
}

func (r *runState) emit(event Event) {
	if r.opts.OnEvent == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.OnEvent(event)
}

func (r *runState) output(stepID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outputs[stepID]
	return out, ok
}

func (r *runState) setOutput(stepID, out string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[stepID] = out
}

// runNode executes one step including its recovery loop and stores the
// result on the node.
func (r *runState) runNode(ctx context.Context, node *DAGNode) {
	step := node.Step
	node.StartTime = time.Now()
	r.emit(Event{Kind: EventStepStart, StepID: step.ID, Action: step.Action, Input: step.Parameters})

	result := r.runStep(ctx, step)
	result.DurationMS = time.Since(node.StartTime).Milliseconds()
	node.EndTime = time.Now()
	node.Result = result

	if result.Success {
		node.Status = types.StepCompleted
		r.setOutput(step.ID, result.Output)
		r.emit(Event{Kind: EventStepComplete, StepID: step.ID, Output: result.Output})
		return
	}
	node.Status = types.StepFailed
	r.emit(Event{Kind: EventStepError, StepID: step.ID, Error: result.Error})
}

// runStep drives the invoke/recover loop for a single step.
func (r *runState) runStep(ctx context.Context, step *types.Step) *types.StepResult {
	tool, ok := r.executor.tools.Get(step.Action)
	if !ok {
		// Missing tools are terminal; no recovery strategy can conjure one.
		return &types.StepResult{Error: "tool not found: " + step.Action}
	}

	retried := false
	for {
		outcome := r.invoke(ctx, tool, step)
		if outcome.Success {
			if retried {
				outcome.Recovered = true
				outcome.RecoveryAction = string(types.RecoveryRetry)
			}
			return outcome
		}
		if r.executor.recovery == nil || r.opts.DisableRecovery {
			return outcome
		}
		action := r.executor.recovery.Recover(outcome.Error, step)
		if action == nil {
			return outcome
		}

		switch action.Kind {
		case types.RecoveryRetry:
			r.emit(Event{Kind: EventStepRecovery, StepID: step.ID, Recovery: string(action.Kind),
				Reason: fmt.Sprintf("retrying after %dms", action.DelayMS)})
			if !sleepOrCancel(ctx, r.opts.Cancel, time.Duration(action.DelayMS)*time.Millisecond) {
				return outcome
			}
			retried = true

		case types.RecoverySubstitute:
			r.emit(Event{Kind: EventStepRecovery, StepID: step.ID, Recovery: string(action.Kind),
				Reason: "substituting " + action.Alternative.Action})
			return r.runSubstitute(ctx, step, action.Alternative)

		case types.RecoverySkip:
			r.emit(Event{Kind: EventStepRecovery, StepID: step.ID, Recovery: string(action.Kind), Reason: action.Reason})
			return &types.StepResult{
				Success:        true,
				Recovered:      true,
				RecoveryAction: string(types.RecoverySkip),
			}

		case types.RecoveryAbort:
			outcome.RecoveryAction = string(types.RecoveryAbort)
			outcome.Error = action.UserMessage
			return outcome

		default:
			return outcome
		}
	}
}

// runSubstitute runs the alternative step exactly once; a failing substitute
// never re-enters recovery.
func (r *runState) runSubstitute(ctx context.Context, original, alt *types.Step) *types.StepResult {
	tool, ok := r.executor.tools.Get(alt.Action)
	if !ok {
		return &types.StepResult{Error: "substitute tool not found: " + alt.Action}
	}
	// The substitute inherits the original's dependencies so placeholder
	// resolution keeps working.
	if len(alt.DependsOn) == 0 {
		alt.DependsOn = original.DependsOn
	}
	outcome := r.invoke(ctx, tool, alt)
	if outcome.Success {
		outcome.Recovered = true
		outcome.RecoveryAction = string(types.RecoverySubstitute)
	}
	return outcome
}

// invoke resolves placeholders, calls the tool, and normalizes errors and
// panics into a failed StepResult.
func (r *runState) invoke(ctx context.Context, tool types.Tool, step *types.Step) (result *types.StepResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = &types.StepResult{Error: fmt.Sprintf("tool panic: %v", recovered)}
		}
	}()

	input := r.resolveParameters(step)
	toolResult, err := tool.Invoke(ctx, input)
	if err != nil {
		return &types.StepResult{Error: err.Error()}
	}
	if toolResult == nil {
		return &types.StepResult{Error: "tool returned no result"}
	}
	if !toolResult.Success {
		errMsg := toolResult.Error
		if errMsg == "" {
			errMsg = "tool reported failure"
		}
		return &types.StepResult{Error: errMsg}
	}
	return &types.StepResult{Success: true, Output: toolResult.OutputString()}
}

// resolveParameters substitutes {{step_id}} and {{previous}} placeholders in
// string parameters with upstream outputs. The step's own map is never
// mutated.
func (r *runState) resolveParameters(step *types.Step) map[string]any {
	input := step.CloneParameters()
	for key, value := range input {
		text, ok := value.(string)
		if !ok || !strings.Contains(text, "{{") {
			continue
		}
		for _, dep := range step.DependsOn {
			if out, ok := r.output(dep); ok {
				text = strings.ReplaceAll(text, "{{"+dep+"}}", out)
			}
		}
		if strings.Contains(text, previousPlaceholder) && len(step.DependsOn) > 0 {
			if out, ok := r.output(step.DependsOn[len(step.DependsOn)-1]); ok {
				text = strings.ReplaceAll(text, previousPlaceholder, out)
			}
		}
		input[key] = text
	}
	return input
}

// collect folds the graph's final node states into an ExecutionResult.
// Anything still pending (cancellation, early break) counts as skipped.
func (r *runState) collect(graph *dag, cancelled bool) *types.ExecutionResult {
	result := &types.ExecutionResult{
		TotalSteps:  len(graph.order),
		StepResults: make(map[string]*types.StepResult, len(graph.order)),
		Cancelled:   cancelled,
	}
	for _, id := range graph.order {
		node := graph.nodes[id]
		switch node.Status {
		case types.StepCompleted:
			result.SuccessCount++
		case types.StepFailed:
			result.FailedCount++
		case types.StepSkipped:
			result.SkippedCount++
		default:
			node.Status = types.StepSkipped
			result.SkippedCount++
			if node.Result == nil {
				reason := "not reached"
				if cancelled {
					reason = "cancelled"
				}
				node.Result = &types.StepResult{Error: reason}
			}
		}
		if node.Result != nil {
			result.StepResults[id] = node.Result
		}
	}
	result.Success = result.FailedCount == 0 && !cancelled
	return result
}

// sleepOrCancel waits d, returning false when the context or cancel channel
// fires first.
func sleepOrCancel(ctx context.Context, cancel <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-cancel:
		return false
	case <-timer.C:
		return true
	}
}
