package orchestrator

import (
	"fmt"
	"strings"

	"gridpilot/internal/types"
	"gridpilot/internal/validator"
)

// buildReply renders the bilingual user-facing summary of an execution.
func buildReply(plan *types.ExecutionPlan, execution *types.ExecutionResult) string {
	if execution == nil {
		return "❌ 执行失败 (execution failed)"
	}
	if execution.Cancelled {
		return "❌ 已取消 (cancelled)"
	}
	total := execution.TotalSteps
	switch {
	case execution.Success:
		return fmt.Sprintf("✅ 操作完成. %d/%d steps succeeded.", execution.SuccessCount, total)
	case execution.SuccessCount > 0:
		return fmt.Sprintf("⚠️ Partial: %d/%d steps succeeded. %s",
			execution.SuccessCount, total, firstError(plan, execution))
	default:
		return fmt.Sprintf("❌ 操作失败 (operation failed): %s", firstError(plan, execution))
	}
}

// buildBlockedReply renders validator block errors without running any tool.
func buildBlockedReply(result validator.Result) string {
	var lines []string
	for _, issue := range result.Errors {
		lines = append(lines, issue.Message)
	}
	reply := "❌ 计划未通过校验 (plan rejected): " + strings.Join(lines, "; ")
	if len(result.Suggestions) > 0 {
		reply += " Suggestions: " + strings.Join(result.Suggestions, "; ")
	}
	return reply
}

// firstError walks plan order so the reported error is deterministic.
func firstError(plan *types.ExecutionPlan, execution *types.ExecutionResult) string {
	if plan != nil {
		for _, step := range plan.Steps {
			if result := execution.StepResults[step.ID]; result != nil && !result.Success && result.Error != "" {
				return result.Error
			}
		}
	}
	for _, result := range execution.StepResults {
		if result != nil && !result.Success && result.Error != "" {
			return result.Error
		}
	}
	return ""
}
