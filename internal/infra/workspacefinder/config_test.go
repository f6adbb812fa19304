package workspacefinder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "ws")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// Partial config (no paths/defaults)
	content := []byte("floww:\n  masking:\n    enabled: false\n")
	if err := os.WriteFile(filepath.Join(root, "floww.yaml"), content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Masking.Enabled != false {
		t.Fatalf("expected masking=false, got=%v", cfg.Masking.Enabled)
	}
	if cfg.Defaults.Environment != "ci" {
		t.Fatalf("expected default env=ci, got=%s", cfg.Defaults.Environment)
	}
	if cfg.Paths.PipelinesDir != "pipelines" {
		t.Fatalf("expected pipelines dir=pipelines, got=%s", cfg.Paths.PipelinesDir)
	}
	if cfg.Paths.EnvironmentsDir != "env" {
		t.Fatalf("expected env dir=env, got=%s", cfg.Paths.EnvironmentsDir)
	}
	if cfg.Paths.RunsDir != "runs" {
		t.Fatalf("expected runs dir=runs, got=%s", cfg.Paths.RunsDir)
	}
}

func TestLoadConfig_OverridesPaths(t *testing.T) {
	tmp := t.TempDir()

	content := []byte("floww:\n  defaults:\n    env: staging\n  paths:\n    pipelines_dir: flows\n    runs_dir: .floww/runs\n")
	if err := os.WriteFile(filepath.Join(tmp, "floww.yaml"), content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(tmp)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Defaults.Environment != "staging" {
		t.Fatalf("expected env=staging, got=%s", cfg.Defaults.Environment)
	}
	if cfg.Paths.PipelinesDir != "flows" {
		t.Fatalf("expected pipelines dir=flows, got=%s", cfg.Paths.PipelinesDir)
	}
	if cfg.Paths.RunsDir != ".floww/runs" {
		t.Fatalf("expected runs dir=.floww/runs, got=%s", cfg.Paths.RunsDir)
	}
	if cfg.Masking.Enabled != true {
		t.Fatalf("expected masking default true, got=%v", cfg.Masking.Enabled)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	tmp := t.TempDir()

	_, err := LoadConfig(tmp)
	if err == nil {
		t.Fatalf("expected error for missing floww.yaml")
	}
}
