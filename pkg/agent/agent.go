// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the execution engine: the bounded completion and
// tool-calling loop that drives one conversation at a time.
package agent

import (
	"errors"
	"log/slog"
	"time"

	"github.com/noema-ai/noema/pkg/core"
	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/memory"
	"github.com/noema-ai/noema/pkg/telemetry"
	"github.com/noema-ai/noema/pkg/tool"
)

const (
	// DefaultMaxSteps bounds the completion loop.
	DefaultMaxSteps = 10

	// DefaultContextBudget is the approximate token budget for one turn's
	// context assembly.
	DefaultContextBudget = 6000
)

var ErrMissingProvider = errors.New("agent provider is required")

// Agent runs the execution loop for conversations. One Agent may serve many
// conversations concurrently; each execution advances on a single goroutine.
type Agent struct {
	id           string
	adapter      *llm.Adapter
	registry     *tool.Registry
	invoker      *tool.Invoker
	memory       *memory.Manager
	emitter      core.EventEmitter
	metrics      *telemetry.EngineMetrics
	logger       *slog.Logger
	model        string
	systemPrompt string

	maxSteps      int
	maxToolCalls  int
	stepTimeout   time.Duration
	runTimeout    time.Duration
	contextBudget int
	streaming     bool
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an Agent with a required id and options. A provider (or a
// pre-built adapter) is mandatory; everything else has working defaults.
func New(id string, opts ...Option) (*Agent, error) {
	a := &Agent{
		id:            id,
		emitter:       core.NoopEventEmitter{},
		logger:        slog.Default(),
		maxSteps:      DefaultMaxSteps,
		maxToolCalls:  tool.DefaultMaxCallsPerStep,
		contextBudget: DefaultContextBudget,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.id == "" {
		return nil, errors.New("agent id is required")
	}
	if a.adapter == nil {
		return nil, ErrMissingProvider
	}
	if a.registry == nil {
		a.registry = tool.NewRegistry()
	}
	if a.invoker == nil {
		a.invoker = tool.NewInvoker(a.registry, tool.WithMaxCallsPerStep(a.maxToolCalls))
	}
	if a.memory == nil {
		a.memory = memory.NewManager()
	}
	return a, nil
}

// WithProvider wraps a completion provider in the default adapter.
func WithProvider(provider llm.Provider) Option {
	return func(a *Agent) error {
		a.adapter = llm.NewAdapter(provider)
		return nil
	}
}

// WithAdapter sets a pre-built completion adapter, for callers that need a
// custom retry policy.
func WithAdapter(adapter *llm.Adapter) Option {
	return func(a *Agent) error {
		a.adapter = adapter
		return nil
	}
}

// WithRegistry sets the tool registry.
func WithRegistry(registry *tool.Registry) Option {
	return func(a *Agent) error {
		a.registry = registry
		return nil
	}
}

// WithMemory attaches a memory manager.
func WithMemory(m *memory.Manager) Option {
	return func(a *Agent) error {
		a.memory = m
		return nil
	}
}

// WithEmitter sets the event emitter. Defaults to a no-op.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(a *Agent) error {
		a.emitter = emitter
		return nil
	}
}

// WithMetrics attaches engine metrics.
func WithMetrics(metrics *telemetry.EngineMetrics) Option {
	return func(a *Agent) error {
		a.metrics = metrics
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = logger
		return nil
	}
}

// WithModel sets the model name sent to the provider.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithSystemPrompt seeds every new conversation with a system message.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) error {
		a.systemPrompt = prompt
		return nil
	}
}

// WithMaxSteps bounds the completion loop. Reaching the bound ends the run
// gracefully with StatusMaxSteps, not a failure.
func WithMaxSteps(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return errors.New("max steps must be >= 1")
		}
		a.maxSteps = n
		return nil
	}
}

// WithMaxToolCalls caps tool dispatches per step. Excess requests are
// truncated with a warning, never silently executed.
func WithMaxToolCalls(n int) Option {
	return func(a *Agent) error {
		if n < 1 {
			return errors.New("max tool calls must be >= 1")
		}
		a.maxToolCalls = n
		return nil
	}
}

// WithStepTimeout bounds each completion call.
func WithStepTimeout(d time.Duration) Option {
	return func(a *Agent) error {
		a.stepTimeout = d
		return nil
	}
}

// WithRunTimeout bounds the whole execution wall clock.
func WithRunTimeout(d time.Duration) Option {
	return func(a *Agent) error {
		a.runTimeout = d
		return nil
	}
}

// WithContextBudget sets the approximate token budget for context assembly.
func WithContextBudget(tokens int) Option {
	return func(a *Agent) error {
		a.contextBudget = tokens
		return nil
	}
}

// WithStreaming forwards provider text deltas to the event emitter as they
// arrive.
func WithStreaming(enabled bool) Option {
	return func(a *Agent) error {
		a.streaming = enabled
		return nil
	}
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Memory returns the agent's memory manager.
func (a *Agent) Memory() *memory.Manager { return a.memory }
