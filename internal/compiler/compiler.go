// Package compiler lowers a typed IntentSpec into an ExecutionPlan. Compile
// is a pure function: no I/O, no LLM, deterministic given its inputs (step
// ids embed the compile timestamp but topology and actions never vary).
package compiler

import (
	"fmt"
	"strings"
	"time"

	"gridpilot/internal/shared/logging"
	id "gridpilot/internal/shared/utils/id"
	"gridpilot/internal/types"
)

// Compiler holds only a logger; all state lives in the per-call builder.
type Compiler struct {
	logger logging.Logger
}

// New returns a compiler.
func New(logger logging.Logger) *Compiler {
	return &Compiler{logger: logging.OrNop(logger)}
}

// planBuilder accumulates steps with plan-local id numbering.
type planBuilder struct {
	compiledAt time.Time
	counter    int
	steps      []*types.Step
}

func (b *planBuilder) add(phase types.StepPhase, action string, params map[string]any, write bool, deps ...string) *types.Step {
	b.counter++
	step := &types.Step{
		ID:               id.NewStepID(b.compiledAt, b.counter),
		Order:            len(b.steps),
		Phase:            phase,
		Action:           action,
		Parameters:       params,
		DependsOn:        deps,
		IsWriteOperation: write,
		Status:           types.StepPending,
	}
	b.steps = append(b.steps, step)
	return step
}

// respond appends the terminal response step depending on prev (when given).
func (b *planBuilder) respond(message string, prev *types.Step) *types.Step {
	params := map[string]any{"message": message}
	if prev == nil {
		return b.add(types.StepPhaseResponse, types.ActionRespondToUser, params, false)
	}
	return b.add(types.StepPhaseResponse, types.ActionRespondToUser, params, false, prev.ID)
}

// Compile lowers spec into an execution plan. Unknown intent kinds yield
// UnsupportedIntentError; malformed payloads yield CompileError. It never
// panics across the API boundary.
func (c *Compiler) Compile(spec *types.IntentSpec, wb *types.WorkbookContext) (*types.ExecutionPlan, error) {
	if spec == nil {
		return nil, &CompileError{Reason: "nil intent spec"}
	}

	builder := &planBuilder{compiledAt: time.Now()}

	// Clarification short-circuits every recipe: a single terminal question,
	// no mutation.
	if spec.NeedsClarification || spec.Kind == types.IntentClarify {
		builder.add(types.StepPhaseResponse, types.ActionClarifyRequest, map[string]any{
			"question": spec.ClarificationQuestion,
			"options":  spec.ClarificationOptions,
		}, false)
		return c.finish(builder, spec, "clarify with the user"), nil
	}

	description, err := c.applyRecipe(builder, spec, wb)
	if err != nil {
		return nil, err
	}
	return c.finish(builder, spec, description), nil
}

func (c *Compiler) finish(builder *planBuilder, spec *types.IntentSpec, description string) *types.ExecutionPlan {
	plan := &types.ExecutionPlan{
		ID:              id.NewPlanID(),
		TaskDescription: description,
		Steps:           builder.steps,
		Phase:           types.PlanPhasePlanning,
	}
	if hint := routingHint(spec.CompressedIntent); hint != nil {
		plan.Context = map[string]any{types.RoutingHintKey: hint}
	}
	c.logger.Debug("compiled %s into %d steps", spec.Kind, len(plan.Steps))
	return plan
}

func (c *Compiler) applyRecipe(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	switch spec.Kind {
	case types.IntentCreateTable:
		return c.compileCreateTable(b, spec)
	case types.IntentWriteData, types.IntentUpdateData:
		return c.compileWrite(b, spec, wb)
	case types.IntentDeleteData:
		return c.compileDelete(b, spec, wb)
	case types.IntentFormatRange:
		return c.compileFormat(b, spec, wb)
	case types.IntentCreateFormula, types.IntentBatchFormula, types.IntentCalculateSummary:
		return c.compileFormula(b, spec, wb)
	case types.IntentCreateChart:
		return c.compileChart(b, spec)
	case types.IntentCreateSheet:
		name := spec.SpecString("name", spec.SpecString("sheet_name", "Sheet"))
		op := b.add(types.StepPhaseExecution, types.ActionCreateSheet, map[string]any{"name": name}, true)
		b.respond("已创建工作表 "+name, op)
		return "create sheet " + name, nil
	case types.IntentSwitchSheet:
		name := spec.SpecString("name", spec.SpecString("sheet_name", ""))
		if name == "" {
			return "", &CompileError{Reason: "switch_sheet requires a sheet name"}
		}
		op := b.add(types.StepPhaseExecution, types.ActionSwitchSheet, map[string]any{"name": name}, false)
		b.respond("已切换到工作表 "+name, op)
		return "switch to sheet " + name, nil
	case types.IntentSortData:
		return c.compileRangeOp(b, spec, wb, types.ActionSortRange, true, "sort data")
	case types.IntentFilterData:
		// Filtering only changes the view, never cell contents.
		return c.compileRangeOp(b, spec, wb, types.ActionFilterRange, false, "filter data")
	case types.IntentRemoveDuplicates:
		return c.compileRangeOp(b, spec, wb, types.ActionRemoveDuplicates, true, "remove duplicates")
	case types.IntentCleanData:
		return c.compileRangeOp(b, spec, wb, types.ActionCleanRange, true, "clean data")
	case types.IntentQueryData, types.IntentAnalyzeData, types.IntentLookupValue:
		return c.compileQuery(b, spec, wb)
	case types.IntentRespondOnly:
		b.respond(spec.SpecString("message", ""), nil)
		return "respond to the user", nil
	default:
		return "", &UnsupportedIntentError{Kind: string(spec.Kind)}
	}
}

// compileCreateTable emits the sensing-write-format-autofit-respond chain.
func (c *Compiler) compileCreateTable(b *planBuilder, spec *types.IntentSpec) (string, error) {
	columns := spec.SpecColumns()
	if len(columns) == 0 {
		return "", &CompileError{Reason: "create_table requires at least one column"}
	}
	startCell := spec.SpecString("start_cell", "A1")
	headerRange, err := HeaderRange(startCell, len(columns))
	if err != nil {
		return "", &CompileError{Reason: "bad start_cell", Err: err}
	}

	headers := make([]any, len(columns))
	for i, col := range columns {
		headers[i] = col.Name
	}

	read := b.add(types.StepPhaseSensing, types.ActionReadSelection, map[string]any{}, false)

	writeParams := map[string]any{
		"range":  headerRange,
		"values": []any{headers},
	}
	if sheet := spec.SpecString("target_sheet", ""); sheet != "" {
		writeParams["sheet"] = sheet
	}
	write := b.add(types.StepPhaseExecution, types.ActionWriteRange, writeParams, true, read.ID)

	format := b.add(types.StepPhaseExecution, types.ActionFormatRange, map[string]any{
		"range":  headerRange,
		"format": map[string]any{"bold": true, "fill_color": "#D9E1F2"},
	}, true, write.ID)

	autofit := b.add(types.StepPhaseExecution, types.ActionAutofitRange, map[string]any{
		"range": headerRange,
	}, true, format.ID)

	b.respond(fmt.Sprintf("表格已创建，共 %d 列。", len(columns)), autofit)
	return "create a table with " + joinColumnNames(columns), nil
}

func (c *Compiler) compileWrite(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	target := spec.SpecString("target", spec.SpecString("range", defaultRange(wb)))
	params := map[string]any{"range": target}
	if data, ok := spec.Spec["data"]; ok {
		params["values"] = data
	} else if values, ok := spec.Spec["values"]; ok {
		params["values"] = values
	} else {
		return "", &CompileError{Reason: "write intent carries no data"}
	}
	write := b.add(types.StepPhaseExecution, types.ActionWriteRange, params, true)
	b.respond("数据已写入 "+target, write)
	return "write data to " + target, nil
}

func (c *Compiler) compileDelete(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	target := spec.SpecString("target", spec.SpecString("range", defaultRange(wb)))
	read := b.add(types.StepPhaseSensing, types.ActionReadRange, map[string]any{"range": target}, false)
	clear := b.add(types.StepPhaseExecution, types.ActionClearRange, map[string]any{"range": target}, true, read.ID)
	b.respond("已清除 "+target, clear)
	return "clear data in " + target, nil
}

func (c *Compiler) compileFormat(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	target := spec.SpecString("range", defaultRange(wb))
	params := map[string]any{"range": target}
	if format, ok := spec.Spec["format"]; ok {
		params["format"] = format
	} else if options, ok := spec.Spec["options"]; ok {
		params["format"] = options
	}
	format := b.add(types.StepPhaseExecution, types.ActionFormatRange, params, true)
	b.respond("格式已应用到 "+target, format)
	return "format range " + target, nil
}

func (c *Compiler) compileFormula(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	source := spec.SpecString("source_range", spec.SpecString("range", defaultRange(wb)))
	target := spec.SpecString("target_cell", spec.SpecString("target", ""))
	formula := spec.SpecString("custom_formula", "")
	if formula == "" {
		formula = synthesizeFormula(spec.SpecString("formula_type", "sum"), source)
	}

	read := b.add(types.StepPhaseSensing, types.ActionReadRange, map[string]any{"range": source}, false)
	setParams := map[string]any{"formula": formula}
	if target != "" {
		setParams["target_cell"] = target
	}
	set := b.add(types.StepPhaseExecution, types.ActionSetFormula, setParams, true, read.ID)
	b.respond("公式已设置: "+formula, set)
	return "set formula over " + source, nil
}

func (c *Compiler) compileChart(b *planBuilder, spec *types.IntentSpec) (string, error) {
	dataRange := spec.SpecString("data_range", spec.SpecString("range", ""))
	if dataRange == "" {
		return "", &CompileError{Reason: "create_chart requires a data range"}
	}
	params := map[string]any{
		"data_range": dataRange,
		"chart_type": hostChartType(spec.SpecString("chart_type", "bar")),
	}
	if title := spec.SpecString("title", ""); title != "" {
		params["title"] = title
	}
	chart := b.add(types.StepPhaseExecution, types.ActionCreateChart, params, true)
	b.respond("图表已创建。", chart)
	return "create a chart over " + dataRange, nil
}

// compileRangeOp emits the read → op → respond template shared by sort,
// filter, dedupe and clean.
func (c *Compiler) compileRangeOp(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext, action string, write bool, description string) (string, error) {
	target := spec.SpecString("range", spec.SpecString("target", defaultRange(wb)))
	read := b.add(types.StepPhaseSensing, types.ActionReadRange, map[string]any{"range": target}, false)

	params := map[string]any{"range": target}
	for _, key := range []string{"sort_by", "order", "criteria", "columns"} {
		if v, ok := spec.Spec[key]; ok {
			params[key] = v
		}
	}
	op := b.add(types.StepPhaseExecution, action, params, write, read.ID)
	b.respond("操作完成: "+description, op)
	return description + " in " + target, nil
}

func (c *Compiler) compileQuery(b *planBuilder, spec *types.IntentSpec, wb *types.WorkbookContext) (string, error) {
	target := spec.SpecString("target", spec.SpecString("range", "selection"))
	var read *types.Step
	if strings.EqualFold(target, "selection") || strings.EqualFold(target, "current_selection") {
		read = b.add(types.StepPhaseSensing, types.ActionReadSelection, map[string]any{}, false)
	} else {
		read = b.add(types.StepPhaseSensing, types.ActionReadRange, map[string]any{"range": target}, false)
	}
	b.respond(types.AnalyzeAndReplyToken, read)
	return "answer a question about " + target, nil
}

func defaultRange(wb *types.WorkbookContext) string {
	if wb != nil && wb.Selection != nil && wb.Selection.Address != "" {
		return wb.Selection.Address
	}
	return "A1"
}

// synthesizeFormula maps an abstract formula_type to a concrete expression
// over the source range.
func synthesizeFormula(formulaType, sourceRange string) string {
	fn := map[string]string{
		"sum":     "SUM",
		"average": "AVERAGE",
		"avg":     "AVERAGE",
		"count":   "COUNT",
		"max":     "MAX",
		"min":     "MIN",
		"median":  "MEDIAN",
	}[strings.ToLower(formulaType)]
	if fn == "" {
		fn = "SUM"
	}
	return fmt.Sprintf("=%s(%s)", fn, sourceRange)
}

// hostChartType maps an abstract chart kind to the host-specific enum value.
func hostChartType(kind string) string {
	switch strings.ToLower(kind) {
	case "bar", "column":
		return "ColumnClustered"
	case "line":
		return "Line"
	case "pie":
		return "Pie"
	case "scatter", "xy":
		return "XYScatter"
	case "area":
		return "Area"
	case "doughnut", "donut":
		return "Doughnut"
	default:
		return "ColumnClustered"
	}
}

// routingHint maps a compressed intent tag onto plan decoration. Unknown
// tags return nil and are ignored.
func routingHint(compressed string) *types.RoutingHint {
	switch compressed {
	case "failure":
		return &types.RoutingHint{Priority: "diagnose", AddDiagnosticStep: true}
	case "automation":
		return &types.RoutingHint{
			Priority:       "batch",
			SuggestedTools: []string{types.ActionFillFormula, types.ActionBatchFormula},
		}
	case "structure":
		return &types.RoutingHint{Priority: "refactor"}
	case "maintainability":
		return &types.RoutingHint{Priority: "protect", SuggestedTools: []string{"protect_sheet"}}
	default:
		return nil
	}
}

func joinColumnNames(columns []types.ColumnSpec) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = col.Name
	}
	return strings.Join(names, ", ")
}
