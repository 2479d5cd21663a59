package types

// PlanPhase tracks the coarse lifecycle of an execution plan.
type PlanPhase string

const (
	PlanPhasePlanning  PlanPhase = "planning"
	PlanPhaseExecuting PlanPhase = "executing"
	PlanPhaseCompleted PlanPhase = "completed"
	PlanPhaseFailed    PlanPhase = "failed"
)

// StepPhase classifies a step's role inside a plan. Sensing steps observe
// current workbook state before writes; the response step closes the plan.
type StepPhase string

const (
	StepPhaseSensing   StepPhase = "sensing"
	StepPhaseExecution StepPhase = "execution"
	StepPhaseResponse  StepPhase = "response"
)

// StepStatus is the monotonic per-step execution state.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is a single tool-targeted action inside a plan. Parameters are
// JSON-safe values; string values may carry {{step_id}} or {{previous}}
// placeholders resolved from upstream outputs at execution time.
type Step struct {
	ID               string         `json:"id"`
	Order            int            `json:"order"`
	Phase            StepPhase      `json:"phase"`
	Action           string         `json:"action"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	DependsOn        []string       `json:"depends_on,omitempty"`
	IsWriteOperation bool           `json:"is_write_operation"`
	Status           StepStatus     `json:"status"`
}

// CloneParameters returns a shallow copy of the step's parameter map so tools
// never see (or mutate) the plan's own mapping.
func (s *Step) CloneParameters() map[string]any {
	if s.Parameters == nil {
		return map[string]any{}
	}
	cloned := make(map[string]any, len(s.Parameters))
	for k, v := range s.Parameters {
		cloned[k] = v
	}
	return cloned
}

// ExecutionPlan is the compiler's output: an ordered, dependency-annotated
// sequence of steps. Plans are immutable after validation; only step status
// mutates during execution.
type ExecutionPlan struct {
	ID                    string         `json:"id"`
	TaskDescription       string         `json:"task_description"`
	Steps                 []*Step        `json:"steps"`
	TaskSuccessConditions []string       `json:"task_success_conditions,omitempty"`
	Phase                 PlanPhase      `json:"phase"`
	Context               map[string]any `json:"context,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (p *ExecutionPlan) StepByID(id string) *Step {
	for _, step := range p.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// RoutingHint decorates a plan according to the compressed intent tag. Hints
// never change step semantics, only downstream decoration.
type RoutingHint struct {
	Priority          string   `json:"priority"`
	SuggestedTools    []string `json:"suggested_tools,omitempty"`
	AddDiagnosticStep bool     `json:"add_diagnostic_step,omitempty"`
	Message           string   `json:"message,omitempty"`
}

// RoutingHintKey is the plan context key carrying the routing hint.
const RoutingHintKey = "__routing_hint"
