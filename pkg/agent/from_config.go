// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"fmt"
	"os"
	"time"

	"github.com/noema-ai/noema/pkg/config"
	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/memory"
	"github.com/noema-ai/noema/pkg/memory/ollama"
	"github.com/noema-ai/noema/pkg/resilience"
	"github.com/noema-ai/noema/pkg/telemetry"
	"github.com/noema-ai/noema/pkg/vector"
	"github.com/noema-ai/noema/pkg/vector/qdrant"
)

// FromConfig builds an agent from loaded configuration. A nil provider is
// constructed from cfg.LLM; everything else (adapter retry budget, memory
// tiers, loop bounds, timeouts) comes from cfg. Extra options apply last
// and win.
func FromConfig(id string, cfg *config.Config, provider llm.Provider, extra ...Option) (*Agent, error) {
	if provider == nil {
		p, err := providerFromConfig(cfg.LLM)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Engine.RetryAttempts > 0 {
		retry = retry.WithMaxAttempts(cfg.Engine.RetryAttempts)
	}
	adapter := llm.NewAdapter(provider, llm.WithRetry(retry))

	mgr, err := memoryFromConfig(cfg.Memory)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithAdapter(adapter),
		WithMemory(mgr),
		WithLogger(telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)),
		WithModel(cfg.LLM.Model),
		WithContextBudget(cfg.Memory.ContextBudget),
		WithStreaming(cfg.Engine.StreamingEnable),
	}
	if cfg.Engine.MaxSteps > 0 {
		opts = append(opts, WithMaxSteps(cfg.Engine.MaxSteps))
	}
	if cfg.Engine.MaxToolCalls > 0 {
		opts = append(opts, WithMaxToolCalls(cfg.Engine.MaxToolCalls))
	}
	if cfg.Engine.StepTimeoutSec > 0 {
		opts = append(opts, WithStepTimeout(time.Duration(cfg.Engine.StepTimeoutSec)*time.Second))
	}
	if cfg.Engine.RunTimeoutSec > 0 {
		opts = append(opts, WithRunTimeout(time.Duration(cfg.Engine.RunTimeoutSec)*time.Second))
	}
	if cfg.Engine.SystemPrompt != "" {
		opts = append(opts, WithSystemPrompt(cfg.Engine.SystemPrompt))
	}
	opts = append(opts, extra...)

	return New(id, opts...)
}

// InitTelemetry starts the OpenTelemetry SDK per the telemetry section of
// the configuration. The returned shutdown flushes exporters.
func InitTelemetry(serviceName, version string, cfg *config.Config) (telemetry.ShutdownFunc, error) {
	return telemetry.InitWithConfig(serviceName, version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
}

func providerFromConfig(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("no built-in provider %q, pass one explicitly", cfg.Provider)
	}
}

func memoryFromConfig(cfg config.MemoryConfig) (*memory.Manager, error) {
	opts := []memory.ManagerOption{
		memory.WithWorkingBudget(cfg.WorkingEntries, cfg.WorkingTokens),
	}

	if cfg.Enabled {
		store, err := storeFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		embedder := ollama.NewEmbedder(cfg.EmbedderBaseURL, cfg.EmbedderModel)
		opts = append(opts, memory.WithSemantic(
			memory.NewSemanticMemory(store, embedder, cfg.Collection),
		))
	}

	return memory.NewManager(opts...), nil
}

// SnapshotStoreFromConfig opens the configured conversation snapshot store.
// Returns nil when no snapshot path is set.
func SnapshotStoreFromConfig(cfg config.MemoryConfig) (*memory.SQLiteSnapshotStore, error) {
	if cfg.SnapshotPath == "" {
		return nil, nil
	}
	return memory.OpenSQLiteSnapshotStore(cfg.SnapshotPath)
}

func storeFromConfig(cfg config.MemoryConfig) (vector.Store, error) {
	switch cfg.Store {
	case "", "inmemory":
		return vector.NewInMemoryStore(), nil
	case "qdrant":
		return qdrant.New(cfg.QdrantAddr)
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Store)
	}
}
