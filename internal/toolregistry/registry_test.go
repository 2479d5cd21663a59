package toolregistry

import (
	"context"
	"testing"

	"gridpilot/internal/shared/logging"
	"gridpilot/internal/types"
)

func stubTool(name, description, category string) types.Tool {
	return &types.ToolFunc{
		Def: types.ToolDefinition{Name: name, Description: description, Category: category},
		Fn: func(context.Context, map[string]any) (*types.ToolResult, error) {
			return &types.ToolResult{Success: true, Output: name}, nil
		},
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New(logging.Nop())
	if err := r.Register(stubTool("write_range", "writes", "excel"), RegisterOptions{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(stubTool("write_range", "writes", "excel"), RegisterOptions{}); err == nil {
		t.Fatalf("duplicate register should fail")
	}
	if err := r.Register(stubTool("write_range", "writes v2", "excel"), RegisterOptions{Overwrite: true}); err != nil {
		t.Fatalf("overwrite register: %v", err)
	}
	entry, _ := r.Entry("write_range")
	if entry.Definition().Description != "writes v2" {
		t.Fatalf("overwrite did not replace tool")
	}
}

func TestNamespacedRegistration(t *testing.T) {
	r := New(logging.Nop())
	if err := r.Register(stubTool("read_range", "reads", "excel"), RegisterOptions{Namespace: "excel"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Get("excel.read_range"); !ok {
		t.Fatalf("fully-qualified lookup failed")
	}
	if _, ok := r.Get("read_range"); ok {
		t.Fatalf("bare name should not resolve a namespaced tool")
	}
}

func TestGetDisabledTool(t *testing.T) {
	r := New(logging.Nop())
	if err := r.Register(stubTool("sort_range", "sorts", "excel"), RegisterOptions{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Disable("sort_range"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, ok := r.Get("sort_range"); ok {
		t.Fatalf("Get should hide disabled tools")
	}
	if !r.Has("sort_range") {
		t.Fatalf("Has should see disabled tools")
	}
	if err := r.Enable("sort_range"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, ok := r.Get("sort_range"); !ok {
		t.Fatalf("Get should see re-enabled tools")
	}
}

func TestEvents(t *testing.T) {
	r := New(logging.Nop())
	var events []Event
	r.AddEventListener(func(e Event) { events = append(events, e) })

	if err := r.Register(stubTool("clear_range", "clears", "excel"), RegisterOptions{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Disable("clear_range"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := r.Deprecate("clear_range", "erase_range"); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if err := r.Unregister("clear_range"); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	want := []EventType{EventRegistered, EventDisabled, EventDeprecated, EventUnregistered}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, kind := range want {
		if events[i].Type != kind {
			t.Fatalf("event %d = %s, want %s", i, events[i].Type, kind)
		}
		if events[i].ToolName != "clear_range" {
			t.Fatalf("event %d names %s", i, events[i].ToolName)
		}
		if events[i].Timestamp.IsZero() {
			t.Fatalf("event %d has no timestamp", i)
		}
	}
}

func TestUnregisterWhere(t *testing.T) {
	r := New(logging.Nop())
	r.Register(stubTool("a", "alpha", "x"), RegisterOptions{Group: "legacy"}) //nolint:errcheck
	r.Register(stubTool("b", "beta", "x"), RegisterOptions{Group: "legacy"})  //nolint:errcheck
	r.Register(stubTool("c", "gamma", "x"), RegisterOptions{Group: "core"})   //nolint:errcheck

	removed := r.UnregisterWhere(func(entry *RegisteredTool) bool { return entry.Group == "legacy" })
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if r.Has("a") || r.Has("b") || !r.Has("c") {
		t.Fatalf("wrong survivors")
	}
}

func TestSearchUsesCacheUntilMutation(t *testing.T) {
	r := New(logging.Nop())
	r.Register(stubTool("create_chart", "creates a chart", "excel"), RegisterOptions{}) //nolint:errcheck

	first := r.Search("chart")
	if len(first) != 1 {
		t.Fatalf("search found %d, want 1", len(first))
	}
	// Second identical search is served from the cache and must agree.
	second := r.Search("chart")
	if len(second) != 1 || second[0].FullName != "create_chart" {
		t.Fatalf("cached search disagrees: %v", second)
	}

	r.Register(stubTool("chart_legend", "tweaks chart legends", "excel"), RegisterOptions{}) //nolint:errcheck
	third := r.Search("chart")
	if len(third) != 2 {
		t.Fatalf("post-mutation search found %d, want 2", len(third))
	}
}

func TestStatisticsAndHealth(t *testing.T) {
	r := New(logging.Nop())
	if report := r.HealthCheck(); report.Healthy {
		t.Fatalf("empty registry should be unhealthy")
	}

	r.Register(stubTool("read_range", "reads", "excel"), RegisterOptions{})  //nolint:errcheck
	r.Register(stubTool("write_range", "writes", "excel"), RegisterOptions{}) //nolint:errcheck
	r.Disable("write_range")           //nolint:errcheck
	r.Deprecate("read_range", "")      //nolint:errcheck
	r.RecordUsage("read_range")
	r.RecordUsage("read_range")

	stats := r.Statistics()
	if stats.Total != 2 || stats.Enabled != 1 || stats.Disabled != 1 || stats.Deprecated != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Categories["excel"] != 2 {
		t.Fatalf("categories = %v", stats.Categories)
	}
	if len(stats.TopUsed) != 1 || stats.TopUsed[0].Name != "read_range" || stats.TopUsed[0].UsageCount != 2 {
		t.Fatalf("top used = %v", stats.TopUsed)
	}

	report := r.HealthCheck()
	if !report.Healthy {
		t.Fatalf("registry with enabled tools should be healthy: %+v", report)
	}
	if len(report.Warnings) == 0 {
		t.Fatalf("deprecated tool without replacement should warn")
	}
}
