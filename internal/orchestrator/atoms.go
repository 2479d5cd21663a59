package orchestrator

import "gridpilot/internal/types"

// intentAtoms maps each intent kind to the canonical action/entity pair
// handed to tool discovery. Clarify and respond_only produce no atom.
var intentAtoms = map[types.IntentKind]types.IntentAtom{
	types.IntentCreateTable:      {Action: "create", Entity: "table"},
	types.IntentWriteData:        {Action: "write", Entity: "value"},
	types.IntentUpdateData:       {Action: "update", Entity: "value"},
	types.IntentDeleteData:       {Action: "delete", Entity: "value"},
	types.IntentFormatRange:      {Action: "format", Entity: "range"},
	types.IntentCreateFormula:    {Action: "calculate", Entity: "formula"},
	types.IntentBatchFormula:     {Action: "calculate", Entity: "formula"},
	types.IntentCalculateSummary: {Action: "calculate", Entity: "value"},
	types.IntentAnalyzeData:      {Action: "analyze", Entity: "table"},
	types.IntentCreateChart:      {Action: "chart", Entity: "chart"},
	types.IntentSortData:         {Action: "sort", Entity: "range"},
	types.IntentFilterData:       {Action: "filter", Entity: "range"},
	types.IntentRemoveDuplicates: {Action: "delete", Entity: "row"},
	types.IntentCleanData:        {Action: "update", Entity: "range"},
	types.IntentQueryData:        {Action: "read", Entity: "value"},
	types.IntentLookupValue:      {Action: "read", Entity: "value"},
	types.IntentCreateSheet:      {Action: "create", Entity: "sheet"},
	types.IntentSwitchSheet:      {Action: "move", Entity: "sheet"},
}

// atomForIntent resolves the discovery atom for a parsed intent. The raw
// message rides along so discovery can fall back to free text.
func atomForIntent(spec *types.IntentSpec, message string) (types.IntentAtom, bool) {
	atom, ok := intentAtoms[spec.Kind]
	if !ok {
		return types.IntentAtom{}, false
	}
	atom.RawText = message
	return atom, true
}
