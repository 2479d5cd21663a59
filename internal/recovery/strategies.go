package recovery

import (
	"regexp"

	"gridpilot/internal/types"
)

const fallbackSuffix = "_fallback"

var (
	networkErrRe    = regexp.MustCompile(`(?i)network|timeout|ECONNREFUSED|fetch failed|网络|超时`)
	transientErrRe  = regexp.MustCompile(`(?i)busy|locked|temporarily|繁忙|锁定`)
	rangeNotFoundRe = regexp.MustCompile(`(?i)range.*not found|invalid range|范围.*不存在`)
	sheetMissingRe  = regexp.MustCompile(`(?i)sheet.*not exist|worksheet.*not found|工作表.*不存在`)
	formulaErrRe    = regexp.MustCompile(`(?i)formula|#NAME|#REF|#VALUE|公式`)
	dataFormatRe    = regexp.MustCompile(`(?i)data.*format|format.*invalid|type mismatch|数据格式`)
	permissionRe    = regexp.MustCompile(`(?i)permission|denied|unauthorized|read.?only|权限|只读`)
	anyErrRe        = regexp.MustCompile(`.`)

	quotedNameRe = regexp.MustCompile(`["'「]([^"'」]+)["'」]`)
)

var readActions = map[string]bool{
	types.ActionReadRange:     true,
	types.ActionReadCell:      true,
	types.ActionReadSelection: true,
	types.ActionGetUsedRange:  true,
}

var formulaActions = map[string]bool{
	types.ActionSetFormula:   true,
	types.ActionFillFormula:  true,
	types.ActionBatchFormula: true,
}

func builtinStrategies() []Strategy {
	return []Strategy{
		{
			ID:           "network_error",
			Priority:     5,
			ErrorPattern: networkErrRe,
			Recover: func(_ string, _ *types.Step) *types.RecoveryAction {
				return types.Retry(2000)
			},
		},
		{
			ID:           "transient_error",
			Priority:     5,
			ErrorPattern: transientErrRe,
			Recover: func(_ string, _ *types.Step) *types.RecoveryAction {
				return types.Retry(1000)
			},
		},
		{
			ID:                "range_not_found",
			Priority:          10,
			ErrorPattern:      rangeNotFoundRe,
			ApplicableActions: readActions,
			Recover: func(_ string, step *types.Step) *types.RecoveryAction {
				return types.Substitute(&types.Step{
					ID:        step.ID + fallbackSuffix,
					Phase:     types.StepPhaseSensing,
					Action:    types.ActionReadSelection,
					DependsOn: step.DependsOn,
				})
			},
		},
		{
			ID:           "sheet_not_exist",
			Priority:     10,
			ErrorPattern: sheetMissingRe,
			Recover: func(errMsg string, step *types.Step) *types.RecoveryAction {
				name := missingSheetName(errMsg, step)
				if name == "" {
					return nil
				}
				return types.Substitute(&types.Step{
					ID:               step.ID + fallbackSuffix,
					Phase:            types.StepPhaseExecution,
					Action:           types.ActionCreateSheet,
					Parameters:       map[string]any{"name": name},
					DependsOn:        step.DependsOn,
					IsWriteOperation: true,
				})
			},
		},
		{
			ID:                "formula_error",
			Priority:          10,
			ErrorPattern:      formulaErrRe,
			ApplicableActions: formulaActions,
			Recover: func(errMsg string, _ *types.Step) *types.RecoveryAction {
				return types.Skip("formula could not be applied: " + errMsg)
			},
		},
		{
			ID:           "data_format_error",
			Priority:     15,
			ErrorPattern: dataFormatRe,
			Recover: func(errMsg string, step *types.Step) *types.RecoveryAction {
				if step.IsWriteOperation {
					return nil
				}
				return types.Skip("data format problem: " + errMsg)
			},
		},
		{
			ID:           "permission_error",
			Priority:     20,
			ErrorPattern: permissionRe,
			Recover: func(_ string, step *types.Step) *types.RecoveryAction {
				if step.IsWriteOperation {
					return types.Abort("没有写入权限，请检查工作表保护设置。(No write permission; check sheet protection.)")
				}
				return types.Skip("insufficient permission for read step")
			},
		},
		{
			ID:           "default",
			Priority:     100,
			ErrorPattern: anyErrRe,
			Recover: func(errMsg string, step *types.Step) *types.RecoveryAction {
				if step.IsWriteOperation {
					return nil
				}
				return types.Skip("unrecoverable non-write failure: " + errMsg)
			},
		},
	}
}

// missingSheetName extracts the sheet to create: explicit step parameters
// first, then a quoted name in the error message.
func missingSheetName(errMsg string, step *types.Step) string {
	if name, ok := step.Parameters["sheet"].(string); ok && name != "" {
		return name
	}
	if name, ok := step.Parameters["name"].(string); ok && name != "" {
		return name
	}
	if match := quotedNameRe.FindStringSubmatch(errMsg); match != nil {
		return match[1]
	}
	return ""
}
