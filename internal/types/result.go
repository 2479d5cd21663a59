package types

// StepResult records the observable outcome of one executed step.
type StepResult struct {
	Success        bool   `json:"success"`
	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMS     int64  `json:"duration_ms"`
	Recovered      bool   `json:"recovered,omitempty"`
	RecoveryAction string `json:"recovery_action,omitempty"`
}

// ParallelismStats summarizes how the executor batched a run.
type ParallelismStats struct {
	MaxConcurrent int     `json:"max_concurrent"`
	AvgConcurrent float64 `json:"avg_concurrent"`
	Batches       int     `json:"batches"`
}

// ExecutionResult is the executor's aggregate outcome for one plan.
// Invariant: SuccessCount + FailedCount + SkippedCount == TotalSteps.
type ExecutionResult struct {
	Success         bool                   `json:"success"`
	TotalSteps      int                    `json:"total_steps"`
	SuccessCount    int                    `json:"success_count"`
	FailedCount     int                    `json:"failed_count"`
	SkippedCount    int                    `json:"skipped_count"`
	StepResults     map[string]*StepResult `json:"step_results"`
	TotalDurationMS int64                  `json:"total_duration_ms"`
	Parallelism     ParallelismStats       `json:"parallelism"`
	Cancelled       bool                   `json:"cancelled,omitempty"`
}

// RecoveryKind tags the recovery action variants.
type RecoveryKind string

const (
	RecoveryRetry      RecoveryKind = "retry"
	RecoverySkip       RecoveryKind = "skip"
	RecoverySubstitute RecoveryKind = "substitute"
	RecoveryAbort      RecoveryKind = "abort"
)

// RecoveryAction is the machine-chosen reaction to a tool failure.
// Exactly the fields belonging to the Kind are populated.
type RecoveryAction struct {
	Kind        RecoveryKind `json:"kind"`
	DelayMS     int          `json:"delay_ms,omitempty"`     // retry
	Reason      string       `json:"reason,omitempty"`       // skip
	Alternative *Step        `json:"alternative,omitempty"`  // substitute
	UserMessage string       `json:"user_message,omitempty"` // abort
}

// Retry builds a retry action with the given delay.
func Retry(delayMS int) *RecoveryAction {
	return &RecoveryAction{Kind: RecoveryRetry, DelayMS: delayMS}
}

// Skip builds a skip action with a reason.
func Skip(reason string) *RecoveryAction {
	return &RecoveryAction{Kind: RecoverySkip, Reason: reason}
}

// Substitute builds a substitution action running alt in place of the failed step.
func Substitute(alt *Step) *RecoveryAction {
	return &RecoveryAction{Kind: RecoverySubstitute, Alternative: alt}
}

// Abort builds an abort action carrying a user-facing message.
func Abort(userMessage string) *RecoveryAction {
	return &RecoveryAction{Kind: RecoveryAbort, UserMessage: userMessage}
}
