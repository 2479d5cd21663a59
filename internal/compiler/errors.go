package compiler

import "fmt"

// UnsupportedIntentError reports an intent kind with no recipe.
type UnsupportedIntentError struct {
	Kind string
}

func (e *UnsupportedIntentError) Error() string {
	return fmt.Sprintf("unsupported intent: %s", e.Kind)
}

// CompileError reports a recipe that could not be instantiated from the
// spec payload.
type CompileError struct {
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("compile failed: %s", e.Reason)
}

func (e *CompileError) Unwrap() error { return e.Err }
