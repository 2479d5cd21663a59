package types

import (
	"context"
	"fmt"

	"gridpilot/internal/shared/jsonx"
)

// ParameterType enumerates JSON-safe tool parameter types.
type ParameterType string

const (
	ParamString  ParameterType = "string"
	ParamNumber  ParameterType = "number"
	ParamBoolean ParameterType = "boolean"
	ParamArray   ParameterType = "array"
	ParamObject  ParameterType = "object"
)

// ParameterDescriptor describes one declared tool parameter.
type ParameterDescriptor struct {
	Name     string        `json:"name"`
	Type     ParameterType `json:"type"`
	Required bool          `json:"required"`
	Default  any           `json:"default,omitempty"`
}

// ToolDefinition is the static metadata of a tool.
type ToolDefinition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Category    string                `json:"category,omitempty"`
	Parameters  []ParameterDescriptor `json:"parameters,omitempty"`
}

// ToolResult is the outcome of a single tool invocation. Output may be a
// string or any JSON-serializable object.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OutputString renders the output for placeholder substitution: strings pass
// through, everything else is JSON-stringified.
func (r *ToolResult) OutputString() string {
	if r == nil || r.Output == nil {
		return ""
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	data, err := jsonx.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(data)
}

// Tool is an opaque, side-effecting operation identified by name. Inputs are
// JSON-safe and must be treated as read-only; implementations must be safe to
// run concurrently with other tool invocations.
type Tool interface {
	Definition() ToolDefinition
	Invoke(ctx context.Context, input map[string]any) (*ToolResult, error)
}

// ToolFunc adapts a function to the Tool interface. Used heavily in tests and
// by hosts registering closures over their spreadsheet API.
type ToolFunc struct {
	Def ToolDefinition
	Fn  func(ctx context.Context, input map[string]any) (*ToolResult, error)
}

func (t *ToolFunc) Definition() ToolDefinition { return t.Def }

func (t *ToolFunc) Invoke(ctx context.Context, input map[string]any) (*ToolResult, error) {
	return t.Fn(ctx, input)
}

// NewTool builds a ToolFunc with just a name and description.
func NewTool(name, description string, fn func(ctx context.Context, input map[string]any) (*ToolResult, error)) *ToolFunc {
	return &ToolFunc{Def: ToolDefinition{Name: name, Description: description}, Fn: fn}
}
