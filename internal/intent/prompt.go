package intent

import (
	"fmt"
	"strings"

	tokenutil "gridpilot/internal/shared/token"
	"gridpilot/internal/types"
)

const (
	// historyTurns is how many trailing conversation turns the user prompt carries.
	historyTurns = 4
	// historyTurnRunes caps each carried turn.
	historyTurnRunes = 100
	// historyTokenBudget bounds the whole history block.
	historyTokenBudget = 512
)

// buildSystemPrompt enumerates the closed intent set and the reply contract.
// It deliberately never mentions any tool name: the LLM classifies intent,
// the compiler picks tools.
func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a spreadsheet assistant.\n")
	b.WriteString("Classify the user's message into exactly one of these intents:\n")
	for _, kind := range types.AllIntentKinds {
		b.WriteString("- ")
		b.WriteString(string(kind))
		b.WriteString("\n")
	}
	b.WriteString("\nReply with a single JSON object:\n")
	b.WriteString(`{"intent": "<intent>", "confidence": <0..1>, "needs_clarification": <bool>,`)
	b.WriteString(` "clarification_question": "<string, when clarifying>",`)
	b.WriteString(` "clarification_options": ["<string>", ...],`)
	b.WriteString(` "spec": {<intent-specific parameters>}, "reasoning": "<short rationale>"}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- When the request is ambiguous or destructive without a clear target, use the clarify intent.\n")
	b.WriteString("- confidence reflects how certain you are of the classification.\n")
	b.WriteString("- spec carries only parameters the user actually stated; never invent cell addresses.\n")
	b.WriteString("- Output JSON only, no prose around it.\n")
	return b.String()
}

// buildUserPrompt assembles the message plus the workbook snapshot and a
// bounded slice of recent conversation.
func buildUserPrompt(message string, wb *types.WorkbookContext, history []types.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Message: ")
	b.WriteString(message)
	b.WriteString("\n")

	if wb != nil {
		if wb.Selection != nil && wb.Selection.Address != "" {
			fmt.Fprintf(&b, "Current selection: %s (%d rows x %d cols)\n",
				wb.Selection.Address, wb.Selection.Rows, wb.Selection.Cols)
		}
		if wb.ActiveSheet != "" {
			fmt.Fprintf(&b, "Active sheet: %s\n", wb.ActiveSheet)
		}
		if len(wb.SheetNames) > 0 {
			fmt.Fprintf(&b, "Workbook sheets: %s\n", strings.Join(wb.SheetNames, ", "))
		}
	}

	if block := historyBlock(history); block != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(block)
	}
	return b.String()
}

func historyBlock(history []types.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - historyTurns
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, turn := range history[start:] {
		content := turn.Content
		if runes := []rune(content); len(runes) > historyTurnRunes {
			content = string(runes[:historyTurnRunes]) + "…"
		}
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, content)
	}
	return tokenutil.TruncateToTokens(b.String(), historyTokenBudget)
}
