package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"gridpilot/internal/shared/jsonx"
)

// ParseJSONError reports that no extraction stage could produce valid JSON.
type ParseJSONError struct {
	Raw string
}

func (e *ParseJSONError) Error() string {
	return fmt.Sprintf("no JSON object found in LLM output (%d bytes)", len(e.Raw))
}

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseLLMOutput extracts a JSON object from free-form LLM text. Stages, in
// order: direct parse, code-fence stripping, first balanced brace/bracket
// segment with tidying, and finally a jsonrepair pass over that segment.
func ParseLLMOutput(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseJSONError{Raw: text}
	}

	if parsed, ok := tryParse(trimmed); ok {
		return parsed, nil
	}

	if match := fenceRe.FindStringSubmatch(trimmed); match != nil {
		if parsed, ok := tryParse(strings.TrimSpace(match[1])); ok {
			return parsed, nil
		}
	}

	segment := balancedSegment(trimmed)
	if segment != "" {
		if parsed, ok := tryParse(tidy(segment)); ok {
			return parsed, nil
		}
		// Single-quoted pseudo-JSON shows up in several models.
		requoted := strings.ReplaceAll(tidy(segment), "'", `"`)
		if parsed, ok := tryParse(requoted); ok {
			return parsed, nil
		}
		if repaired, err := jsonrepair.JSONRepair(segment); err == nil {
			if parsed, ok := tryParse(repaired); ok {
				return parsed, nil
			}
		}
	}

	return nil, &ParseJSONError{Raw: text}
}

func tryParse(candidate string) (map[string]any, bool) {
	var parsed map[string]any
	if err := jsonx.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// balancedSegment returns the first brace- or bracket-balanced run,
// respecting string literals and escapes.
func balancedSegment(text string) string {
	start := -1
	var open, close rune
	for i, r := range text {
		if r == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if r == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i, r := range text[start:] {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == open:
			depth++
		case r == close:
			depth--
			if depth == 0 {
				return text[start : start+i+1]
			}
		}
	}
	return ""
}

// tidy removes trailing commas before closers. Leading label text like
// "result:" is already gone: balancedSegment starts at the first brace.
func tidy(segment string) string {
	return trailingCommaRe.ReplaceAllString(segment, "$1")
}
