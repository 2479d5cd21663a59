package intent

import (
	"errors"
	"testing"
)

func TestParseLLMOutputDirect(t *testing.T) {
	parsed, err := ParseLLMOutput(`{"intent":"create_table","confidence":0.9}`)
	if err != nil {
		t.Fatalf("direct parse: %v", err)
	}
	if parsed["intent"] != "create_table" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputCodeFence(t *testing.T) {
	text := "Here is the classification:\n```json\n{\"intent\": \"sort_data\", \"confidence\": 0.8}\n```\nDone."
	parsed, err := ParseLLMOutput(text)
	if err != nil {
		t.Fatalf("fenced parse: %v", err)
	}
	if parsed["intent"] != "sort_data" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputBalancedSegmentWithLabel(t *testing.T) {
	text := `The result is: {"intent": "query_data", "confidence": 0.7,}`
	parsed, err := ParseLLMOutput(text)
	if err != nil {
		t.Fatalf("segment parse: %v", err)
	}
	if parsed["intent"] != "query_data" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputSingleQuotes(t *testing.T) {
	parsed, err := ParseLLMOutput(`reply: {'intent': 'format_range', 'confidence': 0.9}`)
	if err != nil {
		t.Fatalf("single-quote parse: %v", err)
	}
	if parsed["intent"] != "format_range" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputRepair(t *testing.T) {
	// Unquoted keys force the repair stage.
	parsed, err := ParseLLMOutput(`{intent: "write_data", confidence: 0.85}`)
	if err != nil {
		t.Fatalf("repair parse: %v", err)
	}
	if parsed["intent"] != "write_data" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputBracesInsideStrings(t *testing.T) {
	parsed, err := ParseLLMOutput(`noise {"question": "use { or }?", "intent": "clarify"} trailing`)
	if err != nil {
		t.Fatalf("string-aware parse: %v", err)
	}
	if parsed["intent"] != "clarify" {
		t.Fatalf("intent = %v", parsed["intent"])
	}
}

func TestParseLLMOutputFailure(t *testing.T) {
	for _, text := range []string{"", "no json here at all", "{{{{"} {
		_, err := ParseLLMOutput(text)
		if err == nil {
			t.Fatalf("expected failure for %q", text)
		}
		var parseErr *ParseJSONError
		if !errors.As(err, &parseErr) {
			t.Fatalf("error type = %T", err)
		}
	}
}
