package types

// Canonical tool action names targeted by compiled plans. The registry may
// hold more tools than these; these are the ones recipes emit.
const (
	ActionReadSelection    = "read_selection"
	ActionReadRange        = "read_range"
	ActionReadCell         = "read_cell"
	ActionGetSheets        = "get_sheets"
	ActionGetSelection     = "get_selection"
	ActionGetUsedRange     = "get_used_range"
	ActionGetActiveSheet   = "get_active_sheet"
	ActionGetWorkbookInfo  = "get_workbook_info"
	ActionWriteRange       = "write_range"
	ActionClearRange       = "clear_range"
	ActionFormatRange      = "format_range"
	ActionAutofitRange     = "autofit_range"
	ActionSetFormula       = "set_formula"
	ActionFillFormula      = "fill_formula"
	ActionBatchFormula     = "batch_formula"
	ActionCreateChart      = "create_chart"
	ActionCreateSheet      = "create_sheet"
	ActionSwitchSheet      = "switch_sheet"
	ActionDeleteSheet      = "delete_sheet"
	ActionSortRange        = "sort_range"
	ActionFilterRange      = "filter_range"
	ActionRemoveDuplicates = "remove_duplicates"
	ActionCleanRange       = "clean_range"
	ActionRespondToUser    = "respond_to_user"
	ActionClarifyRequest   = "clarify_request"
)

// ReadOnlyActions is the closed set of actions that cannot mutate the
// workbook. A plan made solely of these (with at least one read or respond)
// bypasses validation.
var ReadOnlyActions = map[string]bool{
	ActionReadSelection:   true,
	ActionReadRange:       true,
	ActionReadCell:        true,
	ActionGetSheets:       true,
	ActionGetSelection:    true,
	ActionGetUsedRange:    true,
	ActionGetActiveSheet:  true,
	ActionGetWorkbookInfo: true,
	ActionRespondToUser:   true,
}

// AnalyzeAndReplyToken marks a respond step whose message must be produced
// by analyzing upstream read output rather than echoing it.
const AnalyzeAndReplyToken = "{{ANALYZE_AND_REPLY}}"
