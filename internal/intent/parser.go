// Package intent turns user text plus workbook context into a typed
// IntentSpec. The LLM only classifies; every destructive decision downstream
// is gated by the compiler and validator, so on any parsing trouble this
// package falls back to a clarify intent rather than guessing.
package intent

import (
	"context"

	"gridpilot/internal/semantics"
	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

const fallbackConfidence = 0.3

const fallbackQuestion = "我不太确定您想做什么，能再具体说明一下吗？(I'm not sure what you'd like to do — could you clarify?)"

// Parser extracts intents with LLM assistance.
type Parser struct {
	llm    IntentLLM
	logger logging.Logger
}

// NewParser builds a parser. llm may be nil, in which case every message
// resolves to the clarify fallback (useful in tests and degraded mode).
func NewParser(llm IntentLLM, logger logging.Logger) *Parser {
	return &Parser{llm: llm, logger: logging.OrNop(logger)}
}

// Parse classifies one user message. It never returns an error for LLM or
// parse failures; those produce the clarify fallback. The returned spec
// always satisfies the clarification invariant.
func (p *Parser) Parse(ctx context.Context, message string, wb *types.WorkbookContext, history []types.ConversationTurn) *types.IntentSpec {
	spec := p.classify(ctx, message, wb, history)

	// Semantic atoms are computed locally so downstream routing works even
	// when the LLM replied poorly.
	spec.SemanticAtoms = semantics.TagsFor(message)
	if spec.CompressedIntent == "" {
		spec.CompressedIntent = semantics.CompressedIntent(message)
	}
	normalize(spec)
	return spec
}

func (p *Parser) classify(ctx context.Context, message string, wb *types.WorkbookContext, history []types.ConversationTurn) *types.IntentSpec {
	if p.llm == nil {
		return clarifyFallback()
	}

	raw, err := p.llm.GenerateJSON(ctx, buildSystemPrompt(), buildUserPrompt(message, wb, history))
	if err != nil {
		p.logger.Warn("intent LLM failed, falling back to clarify: %v", err)
		return clarifyFallback()
	}

	parsed, err := ParseLLMOutput(raw)
	if err != nil {
		p.logger.Warn("intent reply unparseable, falling back to clarify: %v", err)
		return clarifyFallback()
	}

	kindStr, _ := parsed["intent"].(string)
	if kindStr == "" {
		p.logger.Warn("intent reply missing intent field, falling back to clarify")
		return clarifyFallback()
	}

	spec := &types.IntentSpec{Kind: types.IntentKind(kindStr)}
	if !spec.Kind.Known() {
		p.logger.Warn("unknown intent kind %q, falling back to clarify", kindStr)
		return clarifyFallback()
	}

	if confidence, ok := parsed["confidence"].(float64); ok {
		spec.Confidence = confidence
	}
	if needs, ok := parsed["needs_clarification"].(bool); ok {
		spec.NeedsClarification = needs
	}
	if question, ok := parsed["clarification_question"].(string); ok {
		spec.ClarificationQuestion = question
	}
	if options, ok := parsed["clarification_options"].([]any); ok {
		for _, opt := range options {
			if s, ok := opt.(string); ok {
				spec.ClarificationOptions = append(spec.ClarificationOptions, s)
			}
		}
	}
	if payload, ok := parsed["spec"].(map[string]any); ok {
		spec.Spec = payload
	}
	if reasoning, ok := parsed["reasoning"].(string); ok {
		spec.Reasoning = reasoning
	}
	if compressed, ok := parsed["compressed_intent"].(string); ok {
		spec.CompressedIntent = compressed
	}
	return spec
}

func clarifyFallback() *types.IntentSpec {
	return &types.IntentSpec{
		Kind:                  types.IntentClarify,
		Confidence:            fallbackConfidence,
		NeedsClarification:    true,
		ClarificationQuestion: fallbackQuestion,
	}
}

// normalize enforces the clarification invariant: needs_clarification iff
// clarify intent or sub-threshold confidence, and a question is always
// present when clarifying.
func normalize(spec *types.IntentSpec) {
	if spec.Confidence < 0 {
		spec.Confidence = 0
	}
	if spec.Confidence > 1 {
		spec.Confidence = 1
	}
	if spec.Kind == types.IntentClarify || spec.Confidence < types.ClarifyThreshold {
		spec.NeedsClarification = true
	}
	if spec.NeedsClarification && spec.Kind != types.IntentClarify && spec.Confidence >= types.ClarifyThreshold {
		// The LLM asked to clarify on its own; honor it.
		spec.Kind = types.IntentClarify
	}
	if spec.NeedsClarification && spec.ClarificationQuestion == "" {
		spec.ClarificationQuestion = fallbackQuestion
	}
}
