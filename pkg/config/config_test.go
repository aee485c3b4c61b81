// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Engine.MaxSteps != 10 {
		t.Fatalf("default max_steps = %d, want 10", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.MaxToolCalls != 8 {
		t.Fatalf("default max_tool_calls = %d, want 8", cfg.Engine.MaxToolCalls)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Memory.Enabled {
		t.Fatal("semantic memory must default to disabled")
	}
	if cfg.Memory.Store != "inmemory" {
		t.Fatalf("default store = %q", cfg.Memory.Store)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noema.yaml")
	content := []byte(`
log:
  level: debug
  format: json
engine:
  max_steps: 3
  max_tool_calls: 2
memory:
  enabled: true
  store: qdrant
  qdrant_addr: "qdrant:6334"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("file values not applied: %+v", cfg.Log)
	}
	if cfg.Engine.MaxSteps != 3 || cfg.Engine.MaxToolCalls != 2 {
		t.Fatalf("engine values not applied: %+v", cfg.Engine)
	}
	if !cfg.Memory.Enabled || cfg.Memory.QdrantAddr != "qdrant:6334" {
		t.Fatalf("memory values not applied: %+v", cfg.Memory)
	}
	// Untouched keys keep defaults.
	if cfg.Engine.RetryAttempts != 3 {
		t.Fatalf("retry_attempts default lost: %d", cfg.Engine.RetryAttempts)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("NOEMA_LOG_LEVEL", "error")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("env override not applied: %q", cfg.Log.Level)
	}
}

func TestEnvOverrideMultiSegmentKeys(t *testing.T) {
	t.Setenv("NOEMA_ENGINE_MAX_STEPS", "5")
	t.Setenv("NOEMA_ENGINE_MAX_TOOL_CALLS", "2")
	t.Setenv("NOEMA_MEMORY_QDRANT_ADDR", "qdrant:6334")
	t.Setenv("NOEMA_LLM_BASE_URL", "http://ollama:11434")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.MaxSteps != 5 {
		t.Fatalf("max_steps override not applied: %d", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.MaxToolCalls != 2 {
		t.Fatalf("max_tool_calls override not applied: %d", cfg.Engine.MaxToolCalls)
	}
	if cfg.Memory.QdrantAddr != "qdrant:6334" {
		t.Fatalf("qdrant_addr override not applied: %q", cfg.Memory.QdrantAddr)
	}
	if cfg.LLM.BaseURL != "http://ollama:11434" {
		t.Fatalf("base_url override not applied: %q", cfg.LLM.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
