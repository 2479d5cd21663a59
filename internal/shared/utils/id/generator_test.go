package id

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestPrefixes(t *testing.T) {
	cases := map[string]func() string{
		"plan-":  NewPlanID,
		"task-":  NewTaskID,
		"trace-": NewTraceID,
		"span-":  NewSpanID,
		"evt-":   NewEventID,
	}
	for prefix, generate := range cases {
		if got := generate(); !strings.HasPrefix(got, prefix) {
			t.Fatalf("id %q lacks prefix %q", got, prefix)
		}
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTaskID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7Strategy(t *testing.T) {
	SetStrategy(StrategyUUIDv7)
	defer SetStrategy(StrategyKSUID)
	id := NewTraceID()
	// UUIDs are dash-separated into five groups after the prefix.
	if strings.Count(id, "-") != 5 {
		t.Fatalf("id %q does not look like a uuid", id)
	}
}

func TestNewStepID(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	got := NewStepID(at, 3)
	if got != "step_1700000000000_3" {
		t.Fatalf("step id = %q", got)
	}
	if !regexp.MustCompile(`^step_\d+_\d+$`).MatchString(got) {
		t.Fatalf("step id %q malformed", got)
	}
}
