package types

// IntentKind is the closed set of intents the parser may emit. The compiler
// owns one recipe per kind; anything outside the set is an UnsupportedIntent.
type IntentKind string

const (
	IntentCreateTable      IntentKind = "create_table"
	IntentWriteData        IntentKind = "write_data"
	IntentUpdateData       IntentKind = "update_data"
	IntentDeleteData       IntentKind = "delete_data"
	IntentFormatRange      IntentKind = "format_range"
	IntentCreateFormula    IntentKind = "create_formula"
	IntentBatchFormula     IntentKind = "batch_formula"
	IntentCalculateSummary IntentKind = "calculate_summary"
	IntentAnalyzeData      IntentKind = "analyze_data"
	IntentCreateChart      IntentKind = "create_chart"
	IntentSortData         IntentKind = "sort_data"
	IntentFilterData       IntentKind = "filter_data"
	IntentRemoveDuplicates IntentKind = "remove_duplicates"
	IntentCleanData        IntentKind = "clean_data"
	IntentQueryData        IntentKind = "query_data"
	IntentLookupValue      IntentKind = "lookup_value"
	IntentCreateSheet      IntentKind = "create_sheet"
	IntentSwitchSheet      IntentKind = "switch_sheet"
	IntentClarify          IntentKind = "clarify"
	IntentRespondOnly      IntentKind = "respond_only"
)

// AllIntentKinds lists every recognized intent in a stable order, used by the
// parser's system prompt and by the compiler's recipe table.
var AllIntentKinds = []IntentKind{
	IntentCreateTable, IntentWriteData, IntentUpdateData, IntentDeleteData,
	IntentFormatRange, IntentCreateFormula, IntentBatchFormula,
	IntentCalculateSummary, IntentAnalyzeData, IntentCreateChart,
	IntentSortData, IntentFilterData, IntentRemoveDuplicates, IntentCleanData,
	IntentQueryData, IntentLookupValue, IntentCreateSheet, IntentSwitchSheet,
	IntentClarify, IntentRespondOnly,
}

// Known reports whether kind belongs to the closed intent set.
func (k IntentKind) Known() bool {
	for _, known := range AllIntentKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ClarifyThreshold is the confidence floor below which an intent is treated
// as needing clarification regardless of what the LLM claimed.
const ClarifyThreshold = 0.5

// IntentAtom is the minimal semantic unit handed to tool discovery: a
// canonical action/entity pair extracted from the intent kind and message.
type IntentAtom struct {
	Action    string   `json:"action,omitempty"`
	Entity    string   `json:"entity,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	RawText   string   `json:"raw_text,omitempty"`
}

// IntentSpec is the parser's output: a typed, tool-agnostic description of
// what the user wants plus the confidence and clarification envelope.
//
// Invariant: NeedsClarification == true iff Kind == clarify or
// Confidence < ClarifyThreshold, and then ClarificationQuestion is non-empty.
type IntentSpec struct {
	Kind                  IntentKind     `json:"intent"`
	Confidence            float64        `json:"confidence"`
	NeedsClarification    bool           `json:"needs_clarification"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	ClarificationOptions  []string       `json:"clarification_options,omitempty"`
	Spec                  map[string]any `json:"spec,omitempty"`
	Reasoning             string         `json:"reasoning,omitempty"`

	// CompressedIntent is a short qualitative routing hint (failure,
	// automation, structure, maintainability, ...). Unknown tags are recorded
	// verbatim and ignored by routing.
	CompressedIntent string `json:"compressed_intent,omitempty"`

	// SemanticAtoms are tags matched against the synonym tables,
	// independent of the LLM reply.
	SemanticAtoms []string `json:"semantic_atoms,omitempty"`
}

// ColumnType enumerates supported table column types.
type ColumnType string

const (
	ColumnText       ColumnType = "text"
	ColumnNumber     ColumnType = "number"
	ColumnDate       ColumnType = "date"
	ColumnCurrency   ColumnType = "currency"
	ColumnPercentage ColumnType = "percentage"
	ColumnFormula    ColumnType = "formula"
)

// ColumnSpec describes one column of a create_table intent.
type ColumnSpec struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Formula string     `json:"formula,omitempty"`
}

// SpecString reads a string field from the variant payload, returning
// fallback when the field is absent or not a string.
func (s *IntentSpec) SpecString(key, fallback string) string {
	if s == nil || s.Spec == nil {
		return fallback
	}
	if v, ok := s.Spec[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// SpecColumns decodes the ordered column list of a create_table payload.
// Entries that are plain strings become text columns.
func (s *IntentSpec) SpecColumns() []ColumnSpec {
	if s == nil || s.Spec == nil {
		return nil
	}
	raw, ok := s.Spec["columns"].([]any)
	if !ok {
		return nil
	}
	columns := make([]ColumnSpec, 0, len(raw))
	for _, entry := range raw {
		switch col := entry.(type) {
		case string:
			columns = append(columns, ColumnSpec{Name: col, Type: ColumnText})
		case map[string]any:
			spec := ColumnSpec{Type: ColumnText}
			if name, ok := col["name"].(string); ok {
				spec.Name = name
			}
			if typ, ok := col["type"].(string); ok && typ != "" {
				spec.Type = ColumnType(typ)
			}
			if formula, ok := col["formula"].(string); ok {
				spec.Formula = formula
			}
			if spec.Name != "" {
				columns = append(columns, spec)
			}
		}
	}
	return columns
}
