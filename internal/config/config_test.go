package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	opts := Defaults()
	if !opts.Parallel || opts.MaxConcurrency != 5 {
		t.Fatalf("defaults: %+v", opts)
	}
	if !opts.EnableRecovery || !opts.EnableTracing || !opts.ContinueOnFailure {
		t.Fatalf("defaults: %+v", opts)
	}
	if opts.Streaming || opts.EnableOTel {
		t.Fatalf("streaming and otel default off: %+v", opts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	opts, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if opts.MaxConcurrency != 5 || !opts.Parallel {
		t.Fatalf("missing file should yield defaults: %+v", opts)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "max_concurrency: 2\nparallel: false\nsession_id: sess-9\n"
	if err := os.WriteFile(filepath.Join(dir, "gridpilot.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.MaxConcurrency != 2 || opts.Parallel {
		t.Fatalf("file values ignored: %+v", opts)
	}
	if opts.SessionID != "sess-9" {
		t.Fatalf("session id = %q", opts.SessionID)
	}
	// Unset keys keep their defaults.
	if !opts.EnableRecovery || !opts.ContinueOnFailure {
		t.Fatalf("defaults dropped: %+v", opts)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GRIDPILOT_MAX_CONCURRENCY", "7")
	t.Setenv("GRIDPILOT_ENABLE_TRACING", "false")

	opts, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.MaxConcurrency != 7 {
		t.Fatalf("env override ignored: %+v", opts)
	}
	if opts.EnableTracing {
		t.Fatalf("env bool override ignored: %+v", opts)
	}
}

func TestLoadClampsConcurrency(t *testing.T) {
	t.Setenv("GRIDPILOT_MAX_CONCURRENCY", "-3")
	opts, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if opts.MaxConcurrency != 5 {
		t.Fatalf("non-positive concurrency not clamped: %+v", opts)
	}
}
