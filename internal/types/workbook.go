package types

// SelectionInfo describes the user's current selection in the host workbook.
type SelectionInfo struct {
	Address string `json:"address"`
	Rows    int    `json:"rows,omitempty"`
	Cols    int    `json:"cols,omitempty"`
}

// SheetInfo carries the per-sheet facts the validator's heuristics need.
type SheetInfo struct {
	DataRows int `json:"data_rows,omitempty"`
}

// WorkbookContext is a snapshot of the host workbook taken at the start of an
// orchestration: sheet list, active sheet, current selection. The core never
// talks to the spreadsheet host directly.
type WorkbookContext struct {
	SheetNames  []string             `json:"sheet_names,omitempty"`
	ActiveSheet string               `json:"active_sheet,omitempty"`
	Selection   *SelectionInfo       `json:"selection,omitempty"`
	Sheets      map[string]SheetInfo `json:"sheets,omitempty"`
}

// HasSheet reports whether the workbook currently contains the named sheet.
func (w *WorkbookContext) HasSheet(name string) bool {
	if w == nil {
		return false
	}
	for _, sheet := range w.SheetNames {
		if sheet == name {
			return true
		}
	}
	return false
}

// ConversationTurn is one prior exchange supplied to the intent parser.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
