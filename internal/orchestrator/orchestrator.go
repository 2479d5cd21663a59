// Package orchestrator composes the parser, discovery, compiler, validator,
// executor, recovery, tracing, and monitoring layers into a single call that
// turns a user message into executed spreadsheet operations and a reply.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"gridpilot/internal/compiler"
	"gridpilot/internal/config"
	"gridpilot/internal/executor"
	"gridpilot/internal/intent"
	"gridpilot/internal/monitor"
	"gridpilot/internal/recovery"
	"gridpilot/internal/session"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/shared/utils/id"
	"gridpilot/internal/toolregistry"
	"gridpilot/internal/trace"
	"gridpilot/internal/types"
	"gridpilot/internal/validator"
)

// Orchestration phases reported through OnProgress and the monitor.
const (
	PhaseParsing     = "parsing"
	PhaseDiscovering = "discovering"
	PhaseCompiling   = "compiling"
	PhaseExecuting   = "executing"
	PhaseReflecting  = "reflecting"
	PhaseComplete    = "complete"
)

const totalPhases = 5

// Step chunks interpolate between these two progress marks while the
// executing phase runs.
const (
	executingFloor  = 50
	reflectingFloor = 95
)

// Deps wires the orchestrator's collaborators. Registry is required; every
// other field may be nil and degrades to a sensible default.
type Deps struct {
	Registry *toolregistry.Registry
	LLM      intent.IntentLLM
	Memory   *session.Memory
	Monitor  *monitor.Monitor
	Tracer   *trace.Tracer
	Metrics  *Metrics
	Logger   logging.Logger
}

// Request is one orchestration input.
type Request struct {
	Message  string
	Workbook *types.WorkbookContext
	History  []types.ConversationTurn
}

// Result is the complete outcome of one orchestration call.
type Result struct {
	Success            bool                    `json:"success"`
	Reply              string                  `json:"reply"`
	NeedsClarification bool                    `json:"needs_clarification,omitempty"`
	Intent             *types.IntentSpec       `json:"intent,omitempty"`
	Plan               *types.ExecutionPlan    `json:"plan,omitempty"`
	Validation         *validator.Result       `json:"validation,omitempty"`
	Execution          *types.ExecutionResult  `json:"execution,omitempty"`
	Discovered         []toolregistry.Ranked   `json:"discovered,omitempty"`
	TaskID             string                  `json:"task_id"`
	TraceID            string                  `json:"trace_id,omitempty"`
	DurationMS         int64                   `json:"duration_ms"`
	Cancelled          bool                    `json:"cancelled,omitempty"`
}

// Orchestrator is the composition root of the pipeline.
type Orchestrator struct {
	registry  *toolregistry.Registry
	discovery *toolregistry.Discovery
	parser    *intent.Parser
	compiler  *compiler.Compiler
	validator *validator.Validator
	recovery  *recovery.Manager
	executor  *executor.Executor
	tracer    *trace.Tracer
	monitor   *monitor.Monitor
	memory    *session.Memory
	metrics   *Metrics
	logger    logging.Logger
}

// New assembles the pipeline around the given dependencies.
func New(deps Deps) *Orchestrator {
	logger := logging.OrNop(deps.Logger)
	mon := deps.Monitor
	if mon == nil {
		mon = monitor.New(nil, logger)
	}
	mon.RegisterTools(deps.Registry.Names())
	tracer := deps.Tracer
	if tracer == nil {
		tracer = trace.New(trace.Options{}, logger)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	recov := recovery.NewManager(logger)
	return &Orchestrator{
		registry:  deps.Registry,
		discovery: toolregistry.NewDiscovery(deps.Registry, logger),
		parser:    intent.NewParser(deps.LLM, logger),
		compiler:  compiler.New(logger),
		validator: validator.New(logger),
		recovery:  recov,
		executor:  executor.New(deps.Registry, recov, logger),
		tracer:    tracer,
		monitor:   mon,
		memory:    deps.Memory,
		metrics:   metrics,
		logger:    logger,
	}
}

// Tracer exposes the tracer for trace export.
func (o *Orchestrator) Tracer() *trace.Tracer { return o.tracer }

// Monitor exposes the execution monitor.
func (o *Orchestrator) Monitor() *monitor.Monitor { return o.monitor }

// Orchestrate runs the full pipeline synchronously and returns once the
// executor's loop exits.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request, opts config.Options) *Result {
	return o.run(ctx, req, opts, nil)
}

// run is the shared pipeline; sink receives stream chunks when non-nil.
func (o *Orchestrator) run(ctx context.Context, req Request, opts config.Options, sink func(types.Chunk)) *Result {
	start := time.Now()
	o.metrics.IncActive()
	defer o.metrics.DecActive()

	if sink != nil {
		// Chunk progress never goes backwards within a run.
		forward := sink
		floor := 0
		sink = func(chunk types.Chunk) {
			if chunk.Progress < floor {
				chunk.Progress = floor
			} else {
				floor = chunk.Progress
			}
			forward(chunk)
		}
	}

	taskID := id.NewTaskID()
	result := &Result{TaskID: taskID}
	o.monitor.StartTask(taskID, req.Message)

	tracing := opts.EnableTracing
	if tracing {
		tr := o.tracer.StartTrace("orchestrate", map[string]any{
			"task_id":    taskID,
			"session_id": opts.SessionID,
		})
		result.TraceID = tr.TraceID
	}
	finish := func(success bool, errMsg string) *Result {
		result.DurationMS = time.Since(start).Milliseconds()
		if tracing {
			o.tracer.EndTrace(&trace.Response{Success: success, Content: result.Reply, Error: errMsg})
		}
		if success {
			o.monitor.CompleteTask(taskID)
			o.metrics.IncOrchestration("success")
		} else {
			o.monitor.FailTask(taskID, errMsg)
			o.metrics.IncOrchestration("failure")
		}
		result.Success = success
		return result
	}
	progress := func(phase string, current int, message string, pct int) {
		if opts.OnProgress != nil {
			opts.OnProgress(phase, current, totalPhases, message)
		}
		if sink != nil {
			chunk := types.NewChunk(types.ChunkStatus, pct)
			chunk.Message = message
			sink(chunk)
		}
	}

	// Phase 1: parse intent. The parser never errors; it degrades to the
	// clarify fallback internally.
	progress(PhaseParsing, 1, "understanding request", 10)
	parseStart := o.startPhase(taskID, PhaseParsing, tracing, trace.SpanAI)
	spec := o.parser.Parse(ctx, req.Message, req.Workbook, req.History)
	o.endPhase(taskID, PhaseParsing, tracing, nil, parseStart)
	result.Intent = spec
	if sink != nil {
		chunk := types.NewChunk(types.ChunkIntent, 15)
		chunk.Intent = spec
		sink(chunk)
	}

	// Phase 2: discovery, for observability and stats only.
	progress(PhaseDiscovering, 2, "matching tools", 25)
	if atom, ok := atomForIntent(spec, req.Message); ok {
		discoverStart := o.startPhase(taskID, PhaseDiscovering, tracing, trace.SpanInternal)
		result.Discovered = o.discovery.Discover(atom, toolregistry.DefaultDiscoverOptions())
		if tracing {
			o.tracer.SetAttr("candidates", len(result.Discovered))
		}
		o.endPhase(taskID, PhaseDiscovering, tracing, nil, discoverStart)
	}

	if spec.NeedsClarification {
		result.NeedsClarification = true
		result.Reply = spec.ClarificationQuestion
		o.emitMessage(sink, result.Reply, 100)
		return finish(true, "")
	}

	// Phase 3: compile.
	progress(PhaseCompiling, 3, "building plan", 40)
	compileStart := o.startPhase(taskID, PhaseCompiling, tracing, trace.SpanInternal)
	plan, err := o.compiler.Compile(spec, req.Workbook)
	o.endPhase(taskID, PhaseCompiling, tracing, err, compileStart)
	if err != nil {
		result.Reply = "❌ 无法生成执行计划 (could not build a plan): " + err.Error()
		o.emitMessage(sink, result.Reply, 100)
		return finish(false, err.Error())
	}
	result.Plan = plan
	if sink != nil {
		chunk := types.NewChunk(types.ChunkPlan, 45)
		chunk.Plan = plan
		sink(chunk)
	}

	// Validate before any tool runs.
	validation := o.validator.Validate(plan, req.Workbook)
	result.Validation = &validation
	if !validation.CanProceed {
		result.Reply = buildBlockedReply(validation)
		o.emitMessage(sink, result.Reply, 100)
		return finish(false, "plan blocked by validation")
	}

	// Phase 4: execute.
	progress(PhaseExecuting, 4, "executing plan", executingFloor)
	executeStart := o.startPhase(taskID, PhaseExecuting, tracing, trace.SpanExcel)
	execution := o.executePlan(ctx, taskID, plan, opts, tracing, sink)
	result.Execution = execution
	result.Cancelled = execution.Cancelled
	var execErr error
	if !execution.Success {
		execErr = errExecution
	}
	o.endPhase(taskID, PhaseExecuting, tracing, execErr, executeStart)

	// Phase 5: reflect. Stats feed discovery ranking; episodes feed memory.
	progress(PhaseReflecting, 5, "reflecting", reflectingFloor)
	reflectStart := o.startPhase(taskID, PhaseReflecting, tracing, trace.SpanInternal)
	o.reflect(ctx, req, spec, plan, execution, opts)
	o.endPhase(taskID, PhaseReflecting, tracing, nil, reflectStart)

	result.Reply = buildReply(plan, execution)
	o.emitMessage(sink, result.Reply, 100)
	progress(PhaseComplete, 5, "done", 100)
	return finish(execution.Success, firstError(plan, execution))
}

// executePlan maps options onto the executor and bridges its events into the
// monitor, tracer, and stream sink.
func (o *Orchestrator) executePlan(ctx context.Context, taskID string, plan *types.ExecutionPlan, opts config.Options, tracing bool, sink func(types.Chunk)) *types.ExecutionResult {
	maxConcurrency := opts.MaxConcurrency
	if !opts.Parallel || len(plan.Steps) <= 1 {
		maxConcurrency = 1
	}
	// Step chunks advance through the executing window as steps settle.
	// Event emission is serialized, so the counter needs no lock.
	total := len(plan.Steps)
	settled := 0
	execOpts := executor.Options{
		MaxConcurrency:    maxConcurrency,
		ContinueOnFailure: opts.ContinueOnFailure,
		DisableRecovery:   !opts.EnableRecovery,
		Cancel:            opts.Cancel,
		OnEvent: func(event executor.Event) {
			o.observeEvent(taskID, event, tracing)
			if sink == nil {
				return
			}
			chunk, ok := executor.ChunkForEvent(event)
			if !ok || chunk.Type == types.ChunkComplete {
				return
			}
			switch event.Kind {
			case executor.EventStepComplete, executor.EventStepError, executor.EventStepSkip:
				settled++
			}
			chunk.Progress = executingFloor + settled*(reflectingFloor-executingFloor)/total
			sink(chunk)
		},
	}
	return o.executor.Execute(ctx, plan, execOpts)
}

// observeEvent forwards one executor event to the monitor and tracer.
func (o *Orchestrator) observeEvent(taskID string, event executor.Event, tracing bool) {
	switch event.Kind {
	case executor.EventStepStart:
		o.monitor.StartToolCall(taskID, event.Action, event.Input)
		if tracing {
			o.tracer.AddEvent("step:start", map[string]any{"step_id": event.StepID, "action": event.Action})
		}
	case executor.EventStepComplete:
		o.monitor.CompleteToolCall(taskID, o.actionForStep(taskID, event), event.Output)
		if tracing {
			o.tracer.AddEvent("step:complete", map[string]any{"step_id": event.StepID})
		}
	case executor.EventStepError:
		o.monitor.FailToolCall(taskID, o.actionForStep(taskID, event), event.Error)
		if tracing {
			o.tracer.AddEvent("step:error", map[string]any{"step_id": event.StepID, "error": event.Error})
		}
	case executor.EventStepRecovery:
		if event.Recovery == string(types.RecoverySubstitute) {
			o.monitor.RecordFallback(taskID, event.StepID, event.Reason, event.Reason)
		}
		if tracing {
			o.tracer.AddEvent("step:recovery", map[string]any{"step_id": event.StepID, "kind": event.Recovery})
		}
	case executor.EventStepSkip:
		if tracing {
			o.tracer.AddEvent("step:skip", map[string]any{"step_id": event.StepID, "reason": event.Reason})
		}
	}
}

// actionForStep resolves the action of a step event via the monitor's last
// running call; events after step:start carry only the step id.
func (o *Orchestrator) actionForStep(taskID string, event executor.Event) string {
	if event.Action != "" {
		return event.Action
	}
	if task, ok := o.monitor.Task(taskID); ok {
		for i := len(task.ToolCalls) - 1; i >= 0; i-- {
			if task.ToolCalls[i].Status == monitor.CallRunning {
				return task.ToolCalls[i].ToolName
			}
		}
	}
	return event.StepID
}

// reflect updates discovery statistics from step results and appends a
// session episode when a session is active.
func (o *Orchestrator) reflect(ctx context.Context, req Request, spec *types.IntentSpec, plan *types.ExecutionPlan, execution *types.ExecutionResult, opts config.Options) {
	var actions []string
	for _, step := range plan.Steps {
		actions = append(actions, step.Action)
		result := execution.StepResults[step.ID]
		if result == nil {
			continue
		}
		o.discovery.UpdateStats(step.Action, result.Success, time.Duration(result.DurationMS)*time.Millisecond)
		if result.Success {
			o.registry.RecordUsage(step.Action)
		}
	}

	if o.memory == nil || opts.SessionID == "" {
		return
	}
	outcome := session.OutcomeFailure
	switch {
	case execution.Success:
		outcome = session.OutcomeSuccess
	case execution.SuccessCount > 0:
		outcome = session.OutcomePartial
	}
	episode := session.Episode{
		SessionID:  opts.SessionID,
		Request:    req.Message,
		Intent:     string(spec.Kind),
		Actions:    actions,
		Result:     outcome,
		DurationMS: execution.TotalDurationMS,
		ToolsUsed:  actions,
	}
	if err := o.memory.SaveEpisode(ctx, episode); err != nil {
		o.logger.Warn("save episode: %v", err)
	}
}

func (o *Orchestrator) emitMessage(sink func(types.Chunk), message string, pct int) {
	if sink == nil {
		return
	}
	chunk := types.NewChunk(types.ChunkMessage, pct)
	chunk.Message = message
	sink(chunk)
}

// errExecution marks the executing phase failed without inventing a message
// beyond what step results already carry.
var errExecution = errors.New("one or more steps failed")

func (o *Orchestrator) startPhase(taskID, name string, tracing bool, spanType trace.SpanType) time.Time {
	o.monitor.StartPhase(taskID, name)
	if tracing {
		o.tracer.StartSpan(name, spanType, nil)
	}
	return time.Now()
}

func (o *Orchestrator) endPhase(taskID, name string, tracing bool, err error, started time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
		o.monitor.FailPhase(taskID, name, err.Error())
	} else {
		o.monitor.CompletePhase(taskID, name)
	}
	if tracing {
		o.tracer.EndSpan("", err)
	}
	o.metrics.ObservePhase(name, status, time.Since(started))
}
