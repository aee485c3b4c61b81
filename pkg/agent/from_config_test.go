// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"testing"

	"github.com/noema-ai/noema/pkg/config"
	"github.com/noema-ai/noema/pkg/llm"
)

func TestFromConfigDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a, err := FromConfig("cfg-agent", cfg, &llm.MockProvider{Response: "hello"})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}

	result, err := a.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != StatusCompleted || result.Output != "hello" {
		t.Fatalf("result = %+v", result)
	}
}

func TestFromConfigBuiltinProvider(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.LLM.Provider = "ollama"

	if _, err := FromConfig("cfg-agent", cfg, nil); err != nil {
		t.Fatalf("from config with built-in provider: %v", err)
	}

	cfg.LLM.Provider = "openai"
	if _, err := FromConfig("cfg-agent", cfg, nil); err == nil {
		t.Fatal("provider without built-in implementation must fail construction")
	}
}

func TestInitTelemetry(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	shutdown, err := InitTelemetry("noema-test", "0.0.0", cfg)
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	cfg.Telemetry.Exporter = "statsd"
	if _, err := InitTelemetry("noema-test", "0.0.0", cfg); err == nil {
		t.Fatal("unknown exporter must fail")
	}
}

func TestSnapshotStoreFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	store, err := SnapshotStoreFromConfig(cfg.Memory)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	if store != nil {
		t.Fatal("empty snapshot path must disable the store")
	}

	cfg.Memory.SnapshotPath = t.TempDir() + "/snapshots.db"
	store, err = SnapshotStoreFromConfig(cfg.Memory)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	if store == nil {
		t.Fatal("configured snapshot path must open a store")
	}
	defer store.Close()
}

func TestFromConfigUnknownStore(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Memory.Enabled = true
	cfg.Memory.Store = "cassandra"

	if _, err := FromConfig("cfg-agent", cfg, &llm.MockProvider{}); err == nil {
		t.Fatal("unknown store must fail construction")
	}
}
