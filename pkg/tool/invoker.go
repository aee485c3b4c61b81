// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/resilience"
)

// DefaultMaxCallsPerStep caps tool dispatches within one step.
const DefaultMaxCallsPerStep = 8

// Invoker runs tool calls against a registry. Lookups that miss fail fast
// with a tool-not-found result; arguments are validated before the body
// runs; each call gets the tool's deadline and counts against the tool's
// concurrency bound.
type Invoker struct {
	registry        *Registry
	maxCallsPerStep int

	mu         sync.Mutex
	semaphores map[string]chan struct{}
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithMaxCallsPerStep overrides the per-step dispatch cap.
func WithMaxCallsPerStep(n int) InvokerOption {
	return func(inv *Invoker) { inv.maxCallsPerStep = n }
}

// NewInvoker creates an invoker over a registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry:        registry,
		maxCallsPerStep: DefaultMaxCallsPerStep,
		semaphores:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// MaxCallsPerStep returns the per-step dispatch cap.
func (inv *Invoker) MaxCallsPerStep() int { return inv.maxCallsPerStep }

// Invoke runs one tool call and returns its result. Failures, including an
// unknown tool name, are carried in the result rather than returned as
// errors; the engine reports them to the model.
func (inv *Invoker) Invoke(ctx context.Context, call llm.ToolCall) Result {
	started := time.Now()
	name := call.Function.Name

	fail := func(err error) Result {
		return Result{
			CallID:   call.ID,
			ToolName: name,
			Err:      err,
			Duration: time.Since(started),
		}
	}

	t, ok := inv.registry.Get(name)
	if !ok {
		return fail(errors.New(errors.CodeToolNotFound, "tool not registered", nil).
			WithContext("tool", name))
	}
	def := t.Definition()

	arguments, err := parseArguments(call.Function.Arguments)
	if err != nil {
		return fail(err)
	}
	if err := ValidateArguments(def.Parameters, arguments); err != nil {
		return fail(err)
	}

	release, err := inv.acquire(ctx, def)
	if err != nil {
		return fail(err)
	}
	defer release()

	value, err := resilience.WithTimeoutResult(ctx, def.Timeout, func(ctx context.Context) (interface{}, error) {
		return t.Invoke(ctx, arguments)
	})
	if err != nil {
		if errors.CodeOf(err) == errors.CodeInternal {
			err = errors.New(errors.CodeToolFailure, "tool execution failed", err).
				WithContext("tool", name)
		}
		return fail(err)
	}

	return Result{
		CallID:   call.ID,
		ToolName: name,
		Value:    value,
		Duration: time.Since(started),
	}
}

// InvokeAll dispatches calls concurrently, at most maxCallsPerStep of them.
// Results are positionally aligned with the dispatched calls; consumers
// correlate by CallID, completion order is not guaranteed. The second return
// is the number of calls dropped by the cap.
func (inv *Invoker) InvokeAll(ctx context.Context, calls []llm.ToolCall) ([]Result, int) {
	dropped := 0
	if inv.maxCallsPerStep > 0 && len(calls) > inv.maxCallsPerStep {
		dropped = len(calls) - inv.maxCallsPerStep
		calls = calls[:inv.maxCallsPerStep]
	}
	if len(calls) == 0 {
		return []Result{}, dropped
	}

	results := make([]Result, len(calls))
	p := pool.New().WithMaxGoroutines(len(calls))
	for i, call := range calls {
		i, call := i, call
		p.Go(func() {
			results[i] = inv.Invoke(ctx, call)
		})
	}
	p.Wait()

	return results, dropped
}

// acquire takes a slot on the tool's concurrency semaphore. Excess calls
// wait for a slot rather than being dropped; cancellation interrupts the
// wait.
func (inv *Invoker) acquire(ctx context.Context, def Definition) (func(), error) {
	if def.MaxConcurrent <= 0 {
		return func() {}, nil
	}

	inv.mu.Lock()
	sem, ok := inv.semaphores[def.Name]
	if !ok {
		sem = make(chan struct{}, def.MaxConcurrent)
		inv.semaphores[def.Name] = sem
	}
	inv.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, errors.New(errors.CodeContextLost, "canceled waiting for tool slot", ctx.Err()).
			WithContext("tool", def.Name)
	}
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var arguments map[string]any
	if err := json.Unmarshal([]byte(raw), &arguments); err != nil {
		return nil, errors.New(errors.CodeInvalidArguments, "arguments are not a JSON object", err)
	}
	return arguments, nil
}
