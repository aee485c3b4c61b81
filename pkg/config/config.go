// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads execution-core settings from defaults, an optional
// YAML file and NOEMA_-prefixed environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	LLM       LLMConfig       `koanf:"llm"`
	Engine    EngineConfig    `koanf:"engine"`
	Memory    MemoryConfig    `koanf:"memory"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // openai, anthropic, deepseek, ollama
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type EngineConfig struct {
	MaxSteps        int    `koanf:"max_steps"`
	MaxToolCalls    int    `koanf:"max_tool_calls"` // per-step cap
	StepTimeoutSec  int    `koanf:"step_timeout_sec"`
	RunTimeoutSec   int    `koanf:"run_timeout_sec"` // 0 disables the wall-clock budget
	RetryAttempts   int    `koanf:"retry_attempts"`  // provider retry budget
	StreamingEnable bool   `koanf:"streaming"`
	SystemPrompt    string `koanf:"system_prompt"`
}

type MemoryConfig struct {
	Enabled          bool   `koanf:"enabled"` // semantic recall during context assembly
	WorkingEntries   int    `koanf:"working_entries"`
	WorkingTokens    int    `koanf:"working_tokens"`
	ContextBudget    int    `koanf:"context_budget"` // token budget for build_context
	Store            string `koanf:"store"`          // inmemory, qdrant
	Collection       string `koanf:"collection"`
	QdrantAddr       string `koanf:"qdrant_addr"`
	EmbedderProvider string `koanf:"embedder_provider"`
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
	SnapshotPath     string `koanf:"snapshot_path"` // sqlite snapshot store, empty disables
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")

	k.Set("llm.provider", "openai")
	k.Set("llm.model", "")

	k.Set("engine.max_steps", 10)
	k.Set("engine.max_tool_calls", 8)
	k.Set("engine.step_timeout_sec", 120)
	k.Set("engine.run_timeout_sec", 0)
	k.Set("engine.retry_attempts", 3)
	k.Set("engine.streaming", false)

	k.Set("memory.enabled", false)
	k.Set("memory.working_entries", 50)
	k.Set("memory.working_tokens", 4000)
	k.Set("memory.context_budget", 6000)
	k.Set("memory.store", "inmemory")
	k.Set("memory.collection", "noema_memory")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (NOEMA_ENGINE_MAX_STEPS -> engine.max_steps). The
	// first underscore separates the section; the rest of the key keeps
	// its underscores.
	if err := k.Load(env.Provider("NOEMA_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "NOEMA_"))
		section, rest, ok := strings.Cut(key, "_")
		if !ok {
			return key
		}
		return section + "." + rest
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
