package intent

import "context"

// IntentLLM is the single LLM capability the core needs: produce a JSON-ish
// reply for a system/user prompt pair. The parser tolerates malformed output;
// implementations need not guarantee strict JSON. Timeouts belong to the
// caller's context.
type IntentLLM interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LLMFunc adapts a function to IntentLLM.
type LLMFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f LLMFunc) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
