// Package validator rejects plans that are guaranteed to fail before any
// tool runs. Rules run in registration order; blocking issues stop
// execution, warnings only annotate. Pure-query plans bypass all rules.
package validator

import (
	"fmt"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

// Severity splits rules into blocking errors and advisory warnings.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Issue is one rule finding.
type Issue struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	StepID   string   `json:"step_id,omitempty"`
	Message  string   `json:"message"`
}

// Result is the validator verdict. CanProceed is false whenever any blocking
// error is present.
type Result struct {
	Passed      bool     `json:"passed"`
	CanProceed  bool     `json:"can_proceed"`
	Errors      []Issue  `json:"errors,omitempty"`
	Warnings    []Issue  `json:"warnings,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Rule checks one property of a plan. check returns nil when satisfied.
type Rule struct {
	ID       string
	Severity Severity
	Enabled  bool
	Check    func(plan *types.ExecutionPlan, wb *types.WorkbookContext) []Issue
}

// RoleDescriptor carries the sheet-role heuristics of the role_violation
// rule so deployments can override the hard-coded table layout assumption.
type RoleDescriptor struct {
	// SheetPattern matches sheet names carrying this role (case-insensitive).
	SheetPattern string
	// LiteralColumns restricts the literal-number refusal to a column window
	// (inclusive letters); empty means every column.
	LiteralColumnsFrom string
	LiteralColumnsTo   string
	Reason             string
}

// DefaultRoles mirrors the original system's transaction/summary heuristics.
func DefaultRoles() []RoleDescriptor {
	return []RoleDescriptor{
		{
			SheetPattern:       "transaction|order|sale",
			LiteralColumnsFrom: "D",
			LiteralColumnsTo:   "G",
			Reason:             "price/cost/amount columns on transaction sheets must be computed, not literal",
		},
		{
			SheetPattern: "summary|report|monthly|yearly",
			Reason:       "summary sheets must derive their numbers from formulas, not literals",
		},
	}
}

// Validator applies its rules in order.
type Validator struct {
	rules  []Rule
	logger logging.Logger
}

// New builds a validator with the default rule set and roles.
func New(logger logging.Logger) *Validator {
	return NewWithRoles(DefaultRoles(), logger)
}

// NewWithRoles builds a validator with custom role descriptors.
func NewWithRoles(roles []RoleDescriptor, logger logging.Logger) *Validator {
	v := &Validator{logger: logging.OrNop(logger)}
	v.rules = []Rule{
		{ID: "dependency_order", Severity: SeverityBlock, Enabled: true, Check: checkDependencyOrder},
		{ID: "reference_exists", Severity: SeverityBlock, Enabled: true, Check: checkReferenceExists},
		{ID: "role_violation", Severity: SeverityBlock, Enabled: true, Check: roleViolationCheck(roles)},
		{ID: "batch_behavior_missing", Severity: SeverityWarn, Enabled: true, Check: checkBatchBehavior},
		{ID: "high_risk_operation", Severity: SeverityBlock, Enabled: true, Check: checkHighRisk},
	}
	return v
}

// SetRuleEnabled toggles a rule by id.
func (v *Validator) SetRuleEnabled(ruleID string, enabled bool) {
	for i := range v.rules {
		if v.rules[i].ID == ruleID {
			v.rules[i].Enabled = enabled
		}
	}
}

// Validate runs every enabled rule against the plan. wb may be nil; rules
// that need workbook context degrade to pass.
func (v *Validator) Validate(plan *types.ExecutionPlan, wb *types.WorkbookContext) Result {
	if plan == nil || len(plan.Steps) == 0 {
		return Result{Passed: true, CanProceed: true}
	}

	if isQueryOnly(plan) {
		v.logger.Debug("plan %s is query-only, skipping rules", plan.ID)
		return Result{Passed: true, CanProceed: true}
	}

	result := Result{Passed: true, CanProceed: true}
	for _, rule := range v.rules {
		if !rule.Enabled {
			continue
		}
		for _, issue := range rule.Check(plan, wb) {
			issue.RuleID = rule.ID
			issue.Severity = rule.Severity
			if rule.Severity == SeverityBlock {
				result.Errors = append(result.Errors, issue)
				result.Passed = false
				result.CanProceed = false
			} else {
				result.Warnings = append(result.Warnings, issue)
				if suggestion := suggestionFor(rule.ID); suggestion != "" {
					result.Suggestions = append(result.Suggestions, suggestion)
				}
			}
		}
	}
	if !result.Passed {
		v.logger.Info("plan %s blocked: %d errors", plan.ID, len(result.Errors))
	}
	return result
}

// isQueryOnly reports whether every step is a read-only action and at least
// one reads or responds.
func isQueryOnly(plan *types.ExecutionPlan) bool {
	sawReadOrRespond := false
	for _, step := range plan.Steps {
		if !types.ReadOnlyActions[step.Action] {
			return false
		}
		sawReadOrRespond = true
	}
	return sawReadOrRespond
}

func suggestionFor(ruleID string) string {
	if ruleID == "batch_behavior_missing" {
		return fmt.Sprintf("consider a %s or %s step to extend the formula down the column",
			types.ActionFillFormula, types.ActionBatchFormula)
	}
	return ""
}
