package recovery

import (
	"regexp"
	"strings"
	"testing"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

func readStep(id string) *types.Step {
	return &types.Step{ID: id, Action: types.ActionReadRange, Parameters: map[string]any{"range": "A1:B2"}}
}

func writeStep(id string) *types.Step {
	return &types.Step{ID: id, Action: types.ActionWriteRange, IsWriteOperation: true, Parameters: map[string]any{"range": "A1"}}
}

func TestRecoverNetworkErrorRetriesThenDegrades(t *testing.T) {
	m := NewManager(logging.Nop())
	step := readStep("s1")

	for i := 0; i < DefaultMaxRetries; i++ {
		action := m.Recover("network timeout while fetching", step)
		if action == nil || action.Kind != types.RecoveryRetry {
			t.Fatalf("attempt %d: %+v", i, action)
		}
		if action.DelayMS != 2000 {
			t.Fatalf("retry delay = %d, want 2000", action.DelayMS)
		}
	}
	if m.RetryCount("s1") != DefaultMaxRetries {
		t.Fatalf("retry count = %d", m.RetryCount("s1"))
	}

	// Budget exhausted: the search continues past retry into the default
	// skip strategy for reads.
	action := m.Recover("network timeout while fetching", step)
	if action == nil || action.Kind != types.RecoverySkip {
		t.Fatalf("exhausted budget should degrade to skip, got %+v", action)
	}
}

func TestRecoverNetworkErrorExhaustedWriteGetsNil(t *testing.T) {
	m := NewManager(logging.Nop())
	m.SetMaxRetries(0)
	action := m.Recover("network timeout", writeStep("s1"))
	if action != nil {
		t.Fatalf("write with no budget and no fallback: %+v", action)
	}
}

func TestRecoverSheetNotExistSubstitutesCreation(t *testing.T) {
	m := NewManager(logging.Nop())
	step := &types.Step{
		ID:               "s1",
		Action:           types.ActionWriteRange,
		IsWriteOperation: true,
		Parameters:       map[string]any{"range": "A1"},
		DependsOn:        []string{"s0"},
	}
	action := m.Recover(`worksheet "数据源" not found`, step)
	if action == nil || action.Kind != types.RecoverySubstitute {
		t.Fatalf("action = %+v", action)
	}
	alt := action.Alternative
	if alt.Action != types.ActionCreateSheet {
		t.Fatalf("alternative action = %s", alt.Action)
	}
	if alt.Parameters["name"] != "数据源" {
		t.Fatalf("sheet name = %v", alt.Parameters["name"])
	}
	if len(alt.DependsOn) != 1 || alt.DependsOn[0] != "s0" {
		t.Fatalf("alternative must inherit dependencies: %v", alt.DependsOn)
	}
	if !alt.IsWriteOperation {
		t.Fatalf("creating a sheet is a write")
	}
}

func TestRecoverSheetNotExistPrefersStepParameters(t *testing.T) {
	m := NewManager(logging.Nop())
	step := &types.Step{
		ID:         "s1",
		Action:     types.ActionWriteRange,
		Parameters: map[string]any{"sheet": "Summary"},
	}
	action := m.Recover("sheet does not exist", step)
	if action == nil || action.Alternative.Parameters["name"] != "Summary" {
		t.Fatalf("action = %+v", action)
	}

	// No name anywhere: the strategy declines and the default refuses the
	// write too.
	anonymous := &types.Step{ID: "s2", Action: types.ActionWriteRange, IsWriteOperation: true, Parameters: map[string]any{}}
	if action := m.Recover("sheet does not exist", anonymous); action != nil {
		t.Fatalf("nameless sheet failure should yield nil, got %+v", action)
	}
}

func TestRecoverRangeNotFoundFallsBackToSelection(t *testing.T) {
	m := NewManager(logging.Nop())
	action := m.Recover("invalid range reference", readStep("s1"))
	if action == nil || action.Kind != types.RecoverySubstitute {
		t.Fatalf("action = %+v", action)
	}
	if action.Alternative.Action != types.ActionReadSelection {
		t.Fatalf("alternative = %s", action.Alternative.Action)
	}

	// The strategy only applies to reads.
	action = m.Recover("invalid range reference", writeStep("s2"))
	if action != nil && action.Kind == types.RecoverySubstitute {
		t.Fatalf("write must not fall back to read_selection: %+v", action)
	}
}

func TestRecoverPermissionError(t *testing.T) {
	m := NewManager(logging.Nop())

	action := m.Recover("permission denied", writeStep("s1"))
	if action == nil || action.Kind != types.RecoveryAbort {
		t.Fatalf("write permission failure: %+v", action)
	}
	if !strings.Contains(action.UserMessage, "权限") {
		t.Fatalf("abort message = %q", action.UserMessage)
	}

	action = m.Recover("permission denied", readStep("s2"))
	if action == nil || action.Kind != types.RecoverySkip {
		t.Fatalf("read permission failure: %+v", action)
	}
}

func TestRecoverFormulaError(t *testing.T) {
	m := NewManager(logging.Nop())
	formula := &types.Step{ID: "s1", Action: types.ActionSetFormula, IsWriteOperation: true}
	action := m.Recover("#REF! in formula", formula)
	if action == nil || action.Kind != types.RecoverySkip {
		t.Fatalf("formula failure: %+v", action)
	}

	// A non-formula write with a formula-looking error falls through; the
	// default strategy refuses writes.
	if action := m.Recover("#REF! in formula", writeStep("s2")); action != nil {
		t.Fatalf("non-formula write: %+v", action)
	}
}

func TestRecoverDefaultSkipsReadsOnly(t *testing.T) {
	m := NewManager(logging.Nop())
	if action := m.Recover("something inexplicable", readStep("s1")); action == nil || action.Kind != types.RecoverySkip {
		t.Fatalf("read default: %+v", action)
	}
	if action := m.Recover("something inexplicable", writeStep("s2")); action != nil {
		t.Fatalf("write default: %+v", action)
	}
}

func TestResetRetryCount(t *testing.T) {
	m := NewManager(logging.Nop())
	step := readStep("s1")
	m.Recover("timeout", step)
	m.Recover("timeout", readStep("s2"))
	if m.RetryCount("s1") != 1 {
		t.Fatalf("count = %d", m.RetryCount("s1"))
	}

	m.ResetRetryCount("s1")
	if m.RetryCount("s1") != 0 || m.RetryCount("s2") != 1 {
		t.Fatalf("single reset wrong: s1=%d s2=%d", m.RetryCount("s1"), m.RetryCount("s2"))
	}

	m.ResetRetryCount("")
	if m.RetryCount("s2") != 0 {
		t.Fatalf("global reset wrong: %d", m.RetryCount("s2"))
	}
}

func TestAddStrategyKeepsPriorityOrder(t *testing.T) {
	m := NewManager(logging.Nop())
	m.AddStrategy(Strategy{
		ID:           "custom_first",
		Priority:     1,
		ErrorPattern: regexp.MustCompile("custom"),
		Recover: func(_ string, _ *types.Step) *types.RecoveryAction {
			return types.Skip("handled by custom strategy")
		},
	})
	action := m.Recover("custom network failure", readStep("s1"))
	if action == nil || action.Kind != types.RecoverySkip || action.Reason != "handled by custom strategy" {
		t.Fatalf("custom strategy did not win: %+v", action)
	}
}
