// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sort"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/resilience"
)

// ParseSource records which mechanism produced a turn's tool calls.
type ParseSource string

const (
	// ParseSourceStructured means the provider returned native tool calls.
	ParseSourceStructured ParseSource = "structured"

	// ParseSourceHeuristic means calls were extracted from assistant text.
	ParseSourceHeuristic ParseSource = "heuristic"

	// ParseSourceNone means the turn requested no tool calls.
	ParseSourceNone ParseSource = "none"
)

// ModelTurn is the normalized result of one completion. Content excludes any
// text consumed by heuristic extraction.
type ModelTurn struct {
	Content      string
	ToolCalls    []ToolCall
	Source       ParseSource
	Disagreement bool
	Usage        Usage
}

// DeltaFunc receives streamed text fragments in arrival order.
type DeltaFunc func(delta string)

// Adapter normalizes provider responses into model turns. It retries
// recoverable provider failures with exponential backoff and reconciles
// structured tool calls with the heuristic text extractor.
type Adapter struct {
	provider Provider
	retry    resilience.RetryConfig
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRetry overrides the default retry policy for provider calls.
func WithRetry(rc resilience.RetryConfig) AdapterOption {
	return func(a *Adapter) { a.retry = rc }
}

// NewAdapter wraps a provider.
func NewAdapter(provider Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		provider: provider,
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SupportsTools reports whether the wrapped provider advertises native
// structured tool-calling.
func (a *Adapter) SupportsTools() bool {
	if tc, ok := a.provider.(ToolCapable); ok {
		return tc.SupportsTools()
	}
	// Providers that don't advertise are assumed capable; their responses
	// still go through reconciliation below.
	return true
}

// Complete runs one completion and normalizes the result. When onDelta is
// non-nil and the provider streams, text fragments are forwarded as they
// arrive; the returned turn always carries the full content.
func (a *Adapter) Complete(ctx context.Context, req ChatRequest, onDelta DeltaFunc) (*ModelTurn, error) {
	if !a.SupportsTools() {
		// No point sending tool defs the backend will reject.
		req.Tools = nil
	}

	resp, err := a.call(ctx, req, onDelta)
	if err != nil {
		return nil, err
	}
	return reconcile(resp), nil
}

func (a *Adapter) call(ctx context.Context, req ChatRequest, onDelta DeltaFunc) (*ChatResponse, error) {
	sp, streaming := a.provider.(StreamingProvider)

	result, err := a.retry.DoWithResult(ctx, func() (interface{}, error) {
		var resp *ChatResponse
		var callErr error
		if streaming && onDelta != nil {
			resp, callErr = drainStream(ctx, sp, req, onDelta)
		} else {
			resp, callErr = a.provider.Chat(ctx, req)
		}
		if callErr != nil {
			return nil, providerError(callErr)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ChatResponse), nil
}

// drainStream consumes a provider stream to completion, forwarding deltas.
// Context cancellation surfaces as an error once the provider closes the
// channel, so the caller never blocks on an abandoned stream.
func drainStream(ctx context.Context, sp StreamingProvider, req ChatRequest, onDelta DeltaFunc) (*ChatResponse, error) {
	chunks, err := sp.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	for {
		select {
		case <-ctx.Done():
			return nil, errors.New(errors.CodeContextLost, "completion canceled mid-stream", ctx.Err())
		case chunk, ok := <-chunks:
			if !ok {
				return &resp, nil
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Content != "" {
				resp.Content += chunk.Content
				onDelta(chunk.Content)
			}
			if chunk.Done {
				resp.ToolCalls = chunk.ToolCalls
				if chunk.Usage != nil {
					resp.Usage = *chunk.Usage
				}
				return &resp, nil
			}
		}
	}
}

// reconcile merges structured tool calls with heuristic text extraction.
// Structured results always win; the heuristic runs regardless so a provider
// that narrates an invocation without emitting structured calls is still
// caught, and so disagreement between the two paths is observable.
func reconcile(resp *ChatResponse) *ModelTurn {
	heuristic := ExtractToolCalls(resp.Content)

	turn := &ModelTurn{
		Content: resp.Content,
		Usage:   resp.Usage,
		Source:  ParseSourceNone,
	}

	switch {
	case len(resp.ToolCalls) > 0:
		turn.ToolCalls = resp.ToolCalls
		turn.Source = ParseSourceStructured
		if len(heuristic) > 0 && !sameCallNames(resp.ToolCalls, heuristic) {
			turn.Disagreement = true
		}
		if len(heuristic) > 0 {
			turn.Content = StripToolCalls(resp.Content)
		}
	case len(heuristic) > 0:
		turn.ToolCalls = heuristic
		turn.Source = ParseSourceHeuristic
		turn.Content = StripToolCalls(resp.Content)
	}

	return turn
}

func sameCallNames(a, b []ToolCall) bool {
	if len(a) != len(b) {
		return false
	}
	na := callNames(a)
	nb := callNames(b)
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func callNames(calls []ToolCall) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Function.Name
	}
	sort.Strings(names)
	return names
}

func providerError(err error) error {
	if _, ok := err.(*errors.NoemaError); ok {
		return err
	}
	return errors.New(errors.CodeProviderError, "provider call failed", err).
		WithRecoverable(true)
}
