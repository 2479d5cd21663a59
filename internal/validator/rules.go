package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gridpilot/internal/compiler"
	"gridpilot/internal/types"
)

const (
	// maxWriteCells bounds the target size of a single write.
	maxWriteCells = 500
	// wholeSheetRow marks a clear range as effectively whole-sheet.
	wholeSheetRow = 1000
)

var (
	quotedSheetRefRe = regexp.MustCompile(`'([^']+)'!`)
	bareSheetRefRe   = regexp.MustCompile(`([A-Za-z\p{Han}][A-Za-z0-9_\p{Han}]*)!`)
	colOnlyRangeRe   = regexp.MustCompile(`^[A-Za-z]{1,3}:[A-Za-z]{1,3}$`)
	rowOnlyRangeRe   = regexp.MustCompile(`^([0-9]+):([0-9]+)$`)
)

// checkDependencyOrder verifies that every dependency exists and precedes
// its dependent, and that in-plan sheet creation precedes formulas that
// reference the created sheet from another sheet's write.
func checkDependencyOrder(plan *types.ExecutionPlan, _ *types.WorkbookContext) []Issue {
	var issues []Issue

	indexByID := make(map[string]int, len(plan.Steps))
	for i, step := range plan.Steps {
		indexByID[step.ID] = i
	}
	for i, step := range plan.Steps {
		for _, dep := range step.DependsOn {
			depIdx, exists := indexByID[dep]
			if !exists {
				issues = append(issues, Issue{
					StepID:  step.ID,
					Message: fmt.Sprintf("step %s depends on unknown step %s", step.ID, dep),
				})
				continue
			}
			if depIdx >= i {
				issues = append(issues, Issue{
					StepID:  step.ID,
					Message: fmt.Sprintf("step %s depends on later step %s", step.ID, dep),
				})
			}
		}
	}

	// Cross-sheet formula ordering: a formula written to sheet S that
	// references sheet R, both created in-plan, requires create(R) first.
	createdAt := make(map[string]int)
	for i, step := range plan.Steps {
		if step.Action == types.ActionCreateSheet {
			if name, ok := step.Parameters["name"].(string); ok {
				createdAt[name] = i
			}
		}
	}
	if len(createdAt) == 0 {
		return issues
	}
	for i, step := range plan.Steps {
		if !step.IsWriteOperation {
			continue
		}
		for _, referenced := range formulaSheetRefs(step) {
			createIdx, inPlan := createdAt[referenced]
			if inPlan && createIdx > i {
				issues = append(issues, Issue{
					StepID: step.ID,
					Message: fmt.Sprintf("step %s references sheet %q before it is created (step index %d)",
						step.ID, referenced, createIdx),
				})
			}
		}
	}
	return issues
}

// checkReferenceExists verifies every formula-referenced sheet exists now or
// is created earlier in the plan. Needs workbook context.
func checkReferenceExists(plan *types.ExecutionPlan, wb *types.WorkbookContext) []Issue {
	if wb == nil {
		return nil
	}
	created := make(map[string]int)
	for i, step := range plan.Steps {
		if step.Action == types.ActionCreateSheet {
			if name, ok := step.Parameters["name"].(string); ok {
				created[name] = i
			}
		}
	}

	var issues []Issue
	for i, step := range plan.Steps {
		for _, referenced := range formulaSheetRefs(step) {
			if wb.HasSheet(referenced) {
				continue
			}
			if createIdx, inPlan := created[referenced]; inPlan && createIdx < i {
				continue
			}
			issues = append(issues, Issue{
				StepID:  step.ID,
				Message: fmt.Sprintf("formula references sheet %q which does not exist", referenced),
			})
		}
	}
	return issues
}

// roleViolationCheck refuses literal positive numbers written into columns
// that a sheet's role says must be computed.
type compiledRole struct {
	re      *regexp.Regexp
	fromCol int
	toCol   int
	anyCol  bool
	reason  string
}

func roleViolationCheck(roles []RoleDescriptor) func(*types.ExecutionPlan, *types.WorkbookContext) []Issue {
	compiled := make([]compiledRole, 0, len(roles))
	for _, role := range roles {
		re, err := regexp.Compile("(?i)" + role.SheetPattern)
		if err != nil {
			continue
		}
		entry := compiledRole{re: re, reason: role.Reason, anyCol: role.LiteralColumnsFrom == ""}
		if !entry.anyCol {
			entry.fromCol = compiler.ColumnToIndex(role.LiteralColumnsFrom)
			entry.toCol = compiler.ColumnToIndex(role.LiteralColumnsTo)
		}
		compiled = append(compiled, entry)
	}

	return func(plan *types.ExecutionPlan, wb *types.WorkbookContext) []Issue {
		var issues []Issue
		for _, step := range plan.Steps {
			if !step.IsWriteOperation || step.Action != types.ActionWriteRange {
				continue
			}
			sheet := targetSheet(step, wb)
			if sheet == "" {
				continue
			}
			for _, role := range compiled {
				if !role.re.MatchString(sheet) {
					continue
				}
				if col, found := literalPositiveNumberAt(step, role.fromCol, role.toCol, role.anyCol); found {
					issues = append(issues, Issue{
						StepID: step.ID,
						Message: fmt.Sprintf("literal positive number written to column %s of %q sheet: %s",
							compiler.IndexToColumn(col), sheet, role.reason),
					})
				}
			}
		}
		return issues
	}
}

// checkBatchBehavior flags a single-cell formula at row > 1 with no later
// fill/batch step covering its column, when the sheet has more than 2 data
// rows. Needs workbook context.
func checkBatchBehavior(plan *types.ExecutionPlan, wb *types.WorkbookContext) []Issue {
	if wb == nil {
		return nil
	}
	var issues []Issue
	for i, step := range plan.Steps {
		if step.Action != types.ActionSetFormula {
			continue
		}
		target, _ := step.Parameters["target_cell"].(string)
		col, row, err := compiler.ParseCellRef(target)
		if err != nil || row <= 1 {
			continue
		}
		sheet := targetSheet(step, wb)
		if info, ok := wb.Sheets[sheet]; !ok || info.DataRows <= 2 {
			continue
		}
		if columnCoveredLater(plan.Steps[i+1:], col) {
			continue
		}
		issues = append(issues, Issue{
			StepID: step.ID,
			Message: fmt.Sprintf("single-cell formula at %s on a sheet with more data rows; batch application may be missing",
				target),
		})
	}
	return issues
}

// checkHighRisk blocks sheet deletion, whole-sheet clears and oversized writes.
func checkHighRisk(plan *types.ExecutionPlan, _ *types.WorkbookContext) []Issue {
	var issues []Issue
	for _, step := range plan.Steps {
		switch step.Action {
		case types.ActionDeleteSheet:
			issues = append(issues, Issue{
				StepID:  step.ID,
				Message: "delete_sheet is a high-risk operation and must be performed manually",
			})
		case types.ActionClearRange:
			rng, _ := step.Parameters["range"].(string)
			if rng == "" || isWholeSheetRange(rng) {
				issues = append(issues, Issue{
					StepID:  step.ID,
					Message: fmt.Sprintf("clear with range %q would wipe the whole sheet", rng),
				})
			}
		default:
			if !step.IsWriteOperation {
				continue
			}
			rng, _ := step.Parameters["range"].(string)
			if cells := rangeCellCount(rng); cells > maxWriteCells {
				issues = append(issues, Issue{
					StepID:  step.ID,
					Message: fmt.Sprintf("write target %s covers %d cells (limit %d)", rng, cells, maxWriteCells),
				})
			}
		}
	}
	return issues
}

// formulaSheetRefs scans string parameters that look like formulas for
// 'Sheet'! and Sheet! references.
func formulaSheetRefs(step *types.Step) []string {
	var refs []string
	for _, value := range step.Parameters {
		text, ok := value.(string)
		if !ok || !strings.HasPrefix(strings.TrimSpace(text), "=") {
			continue
		}
		for _, match := range quotedSheetRefRe.FindAllStringSubmatch(text, -1) {
			refs = append(refs, match[1])
		}
		stripped := quotedSheetRefRe.ReplaceAllString(text, "")
		for _, match := range bareSheetRefRe.FindAllStringSubmatch(stripped, -1) {
			refs = append(refs, match[1])
		}
	}
	return refs
}

// targetSheet resolves the sheet a step writes to: explicit sheet parameter,
// range prefix, then the active sheet.
func targetSheet(step *types.Step, wb *types.WorkbookContext) string {
	if sheet, ok := step.Parameters["sheet"].(string); ok && sheet != "" {
		return sheet
	}
	if rng, ok := step.Parameters["range"].(string); ok {
		if idx := strings.Index(rng, "!"); idx > 0 {
			return strings.Trim(rng[:idx], "'")
		}
	}
	if wb != nil {
		return wb.ActiveSheet
	}
	return ""
}

// literalPositiveNumberAt scans the values grid for a literal positive
// number landing in the refused column window.
func literalPositiveNumberAt(step *types.Step, fromCol, toCol int, anyCol bool) (int, bool) {
	rng, _ := step.Parameters["range"].(string)
	startCol := 1
	if rng != "" {
		ref := rng
		if idx := strings.Index(ref, "!"); idx >= 0 {
			ref = ref[idx+1:]
		}
		if idx := strings.Index(ref, ":"); idx >= 0 {
			ref = ref[:idx]
		}
		if col, _, err := compiler.ParseCellRef(ref); err == nil {
			startCol = compiler.ColumnToIndex(col)
		}
	}

	values, ok := step.Parameters["values"].([]any)
	if !ok {
		return 0, false
	}
	for _, rawRow := range values {
		row, ok := rawRow.([]any)
		if !ok {
			continue
		}
		for offset, cell := range row {
			col := startCol + offset
			if !anyCol && (col < fromCol || col > toCol) {
				continue
			}
			if num, isNum := asNumber(cell); isNum && num > 0 {
				return col, true
			}
		}
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func columnCoveredLater(steps []*types.Step, col string) bool {
	for _, step := range steps {
		if step.Action != types.ActionFillFormula && step.Action != types.ActionBatchFormula {
			continue
		}
		rng, _ := step.Parameters["range"].(string)
		if strings.Contains(strings.ToUpper(rng), strings.ToUpper(col)) {
			return true
		}
	}
	return false
}

// isWholeSheetRange recognizes A:Z style column spans, 1:1000 style row
// spans and ranges whose end row reaches wholeSheetRow.
func isWholeSheetRange(rng string) bool {
	ref := strings.TrimSpace(rng)
	if idx := strings.Index(ref, "!"); idx >= 0 {
		ref = ref[idx+1:]
	}
	if colOnlyRangeRe.MatchString(ref) {
		return true
	}
	if match := rowOnlyRangeRe.FindStringSubmatch(ref); match != nil {
		end, _ := strconv.Atoi(match[2])
		return end >= wholeSheetRow
	}
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) == 2 {
		if _, endRow, err := compiler.ParseCellRef(parts[1]); err == nil && endRow >= wholeSheetRow {
			return true
		}
	}
	return false
}

// rangeCellCount returns the number of cells a range covers, 1 for a single
// cell, 0 when unparseable.
func rangeCellCount(rng string) int {
	ref := strings.TrimSpace(rng)
	if ref == "" {
		return 0
	}
	if idx := strings.Index(ref, "!"); idx >= 0 {
		ref = ref[idx+1:]
	}
	parts := strings.SplitN(ref, ":", 2)
	startCol, startRow, err := compiler.ParseCellRef(parts[0])
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return 1
	}
	endCol, endRow, err := compiler.ParseCellRef(parts[1])
	if err != nil {
		return 0
	}
	cols := compiler.ColumnToIndex(endCol) - compiler.ColumnToIndex(startCol) + 1
	rows := endRow - startRow + 1
	if cols < 1 || rows < 1 {
		return 0
	}
	return cols * rows
}
