package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

func fixedLLM(reply string, err error) IntentLLM {
	return LLMFunc(func(ctx context.Context, system, user string) (string, error) {
		return reply, err
	})
}

func TestParseHappyPath(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"create_table","confidence":0.92,"needs_clarification":false,"spec":{"columns":["日期","金额"],"start_cell":"A1"}}`, nil), logging.Nop())
	spec := p.Parse(context.Background(), "建一个表格记录日期和金额", nil, nil)

	if spec.Kind != types.IntentCreateTable {
		t.Fatalf("kind = %s", spec.Kind)
	}
	if spec.NeedsClarification {
		t.Fatalf("high-confidence intent should not need clarification")
	}
	if cols := spec.SpecColumns(); len(cols) != 2 || cols[0].Name != "日期" {
		t.Fatalf("columns = %v", cols)
	}
	if len(spec.SemanticAtoms) == 0 {
		t.Fatalf("semantic atoms missing")
	}
}

func TestParseFallsBackOnLLMError(t *testing.T) {
	p := NewParser(fixedLLM("", errors.New("boom")), logging.Nop())
	spec := p.Parse(context.Background(), "do something", nil, nil)
	assertClarifyFallback(t, spec)
}

func TestParseFallsBackOnGarbage(t *testing.T) {
	p := NewParser(fixedLLM("sorry, I cannot help with that", nil), logging.Nop())
	assertClarifyFallback(t, p.Parse(context.Background(), "do something", nil, nil))
}

func TestParseFallsBackOnMissingIntent(t *testing.T) {
	p := NewParser(fixedLLM(`{"confidence":0.9}`, nil), logging.Nop())
	assertClarifyFallback(t, p.Parse(context.Background(), "do something", nil, nil))
}

func TestParseFallsBackOnUnknownIntent(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"summon_demons","confidence":0.99}`, nil), logging.Nop())
	assertClarifyFallback(t, p.Parse(context.Background(), "do something", nil, nil))
}

func TestParseNilLLM(t *testing.T) {
	p := NewParser(nil, logging.Nop())
	assertClarifyFallback(t, p.Parse(context.Background(), "do something", nil, nil))
}

func TestParseLowConfidenceForcesClarification(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"delete_data","confidence":0.2}`, nil), logging.Nop())
	spec := p.Parse(context.Background(), "remove it", nil, nil)
	if !spec.NeedsClarification {
		t.Fatalf("confidence 0.2 must force clarification")
	}
	if spec.ClarificationQuestion == "" {
		t.Fatalf("clarification without a question")
	}
}

func TestParseHonorsLLMClarificationRequest(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"write_data","confidence":0.9,"needs_clarification":true,"clarification_question":"写到哪里？"}`, nil), logging.Nop())
	spec := p.Parse(context.Background(), "write it", nil, nil)
	if spec.Kind != types.IntentClarify {
		t.Fatalf("kind = %s, want clarify when the LLM asks to clarify", spec.Kind)
	}
	if spec.ClarificationQuestion != "写到哪里？" {
		t.Fatalf("question = %q", spec.ClarificationQuestion)
	}
}

func TestParseClampsConfidence(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"query_data","confidence":3.5}`, nil), logging.Nop())
	spec := p.Parse(context.Background(), "what is the total", nil, nil)
	if spec.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamped to 1", spec.Confidence)
	}
}

func TestParseAttachesCompressedIntent(t *testing.T) {
	p := NewParser(fixedLLM(`{"intent":"create_formula","confidence":0.9}`, nil), logging.Nop())
	spec := p.Parse(context.Background(), "the sum formula is broken, fix it", nil, nil)
	if spec.CompressedIntent != "failure" {
		t.Fatalf("compressed intent = %q, want failure", spec.CompressedIntent)
	}
}

func TestUserPromptCarriesContext(t *testing.T) {
	var captured string
	llm := LLMFunc(func(ctx context.Context, system, user string) (string, error) {
		captured = user
		return `{"intent":"query_data","confidence":0.9}`, nil
	})
	wb := &types.WorkbookContext{
		SheetNames:  []string{"Sales", "Summary"},
		ActiveSheet: "Sales",
		Selection:   &types.SelectionInfo{Address: "B2:D10", Rows: 9, Cols: 3},
	}
	history := []types.ConversationTurn{
		{Role: "user", Content: "previous question"},
	}
	NewParser(llm, logging.Nop()).Parse(context.Background(), "总计是多少", wb, history)

	for _, needle := range []string{"B2:D10", "Sales", "Summary", "previous question", "总计是多少"} {
		if !strings.Contains(captured, needle) {
			t.Fatalf("user prompt missing %q:\n%s", needle, captured)
		}
	}
}

func TestSystemPromptNeverNamesTools(t *testing.T) {
	system := buildSystemPrompt()
	for _, tool := range []string{types.ActionWriteRange, types.ActionReadRange, types.ActionCreateChart, types.ActionSetFormula} {
		if strings.Contains(system, tool) {
			t.Fatalf("system prompt leaks tool name %q", tool)
		}
	}
	for _, kind := range types.AllIntentKinds {
		if !strings.Contains(system, string(kind)) {
			t.Fatalf("system prompt missing intent kind %q", kind)
		}
	}
}

func assertClarifyFallback(t *testing.T, spec *types.IntentSpec) {
	t.Helper()
	if spec.Kind != types.IntentClarify {
		t.Fatalf("kind = %s, want clarify", spec.Kind)
	}
	if !spec.NeedsClarification {
		t.Fatalf("fallback must need clarification")
	}
	if spec.Confidence != 0.3 {
		t.Fatalf("fallback confidence = %v, want 0.3", spec.Confidence)
	}
	if spec.ClarificationQuestion == "" {
		t.Fatalf("fallback must carry a question")
	}
}
