// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/resilience"
)

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.DefaultRetryConfig().
		WithMaxAttempts(attempts).
		WithInitialDelay(time.Millisecond).
		WithMaxDelay(5 * time.Millisecond)
}

func TestExtractToolCallsInline(t *testing.T) {
	content := `I'll check the weather. Using the tool 'weather' with parameters: {"city": "Paris"}`

	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Function.Name != "weather" {
		t.Fatalf("name = %q", calls[0].Function.Name)
	}
	if calls[0].Function.Arguments != `{"city": "Paris"}` {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
	if calls[0].ID == "" {
		t.Fatal("extracted call must get an id")
	}
}

func TestExtractToolCallsFenced(t *testing.T) {
	content := "Let me calculate that.\n```tool\n{\"name\": \"calculator\", \"arguments\": {\"expression\": \"2+2\"}}\n```\n"

	calls := ExtractToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Function.Name != "calculator" {
		t.Fatalf("name = %q", calls[0].Function.Name)
	}
	if !strings.Contains(calls[0].Function.Arguments, "2+2") {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
}

func TestExtractToolCallsSkipsMalformed(t *testing.T) {
	cases := []string{
		"Using the tool 'weather' with parameters: {not json}",
		"```tool\nnot json at all\n```",
		"no invocation here",
		"```tool\n{\"arguments\": {\"a\": 1}}\n```", // missing name
	}
	for _, content := range cases {
		if calls := ExtractToolCalls(content); len(calls) != 0 {
			t.Fatalf("content %q yielded calls %+v", content, calls)
		}
	}
}

func TestStripToolCalls(t *testing.T) {
	content := `On it. Using the tool 'weather' with parameters: {"city": "Paris"}`
	if got := StripToolCalls(content); got != "On it." {
		t.Fatalf("stripped content = %q", got)
	}
}

func TestCompleteStructuredPath(t *testing.T) {
	provider := &MockProvider{
		Tools: true,
		ToolCalls: []ToolCall{{
			ID:       "call-1",
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: "calculator", Arguments: `{"expression": "2+2"}`},
		}},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(1)))

	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Source != ParseSourceStructured {
		t.Fatalf("source = %s", turn.Source)
	}
	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0].ID != "call-1" {
		t.Fatalf("tool calls = %+v", turn.ToolCalls)
	}
	if turn.Disagreement {
		t.Fatal("no heuristic calls, disagreement must be false")
	}
}

func TestCompleteHeuristicFallback(t *testing.T) {
	provider := &MockProvider{
		Tools:    true,
		Response: `Sure. Using the tool 'weather' with parameters: {"city": "Oslo"}`,
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(1)))

	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Source != ParseSourceHeuristic {
		t.Fatalf("source = %s", turn.Source)
	}
	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0].Function.Name != "weather" {
		t.Fatalf("tool calls = %+v", turn.ToolCalls)
	}
	if strings.Contains(turn.Content, "Using the tool") {
		t.Fatalf("invocation text leaked into content: %q", turn.Content)
	}
}

func TestCompleteStructuredWinsOnDisagreement(t *testing.T) {
	provider := &MockProvider{
		Tools:    true,
		Response: `Using the tool 'weather' with parameters: {"city": "Oslo"}`,
		ToolCalls: []ToolCall{{
			ID:       "call-1",
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: "calculator", Arguments: `{"expression": "1"}`},
		}},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(1)))

	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Source != ParseSourceStructured {
		t.Fatalf("source = %s", turn.Source)
	}
	if turn.ToolCalls[0].Function.Name != "calculator" {
		t.Fatalf("structured call must win, got %+v", turn.ToolCalls)
	}
	if !turn.Disagreement {
		t.Fatal("disagreement must be flagged")
	}
}

func TestCompleteAgreementNotFlagged(t *testing.T) {
	provider := &MockProvider{
		Tools:    true,
		Response: `Using the tool 'calculator' with parameters: {"expression": "1"}`,
		ToolCalls: []ToolCall{{
			ID:       "call-1",
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: "calculator", Arguments: `{"expression": "1"}`},
		}},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(1)))

	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Disagreement {
		t.Fatal("matching calls must not be flagged")
	}
}

func TestCompleteRetriesRecoverableFailures(t *testing.T) {
	var attempts atomic.Int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			if attempts.Add(1) < 3 {
				return nil, fmt.Errorf("transient")
			}
			return &ChatResponse{Content: "ok"}, nil
		},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(3)))

	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Content != "ok" {
		t.Fatalf("content = %q", turn.Content)
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d", attempts.Load())
	}
}

func TestCompleteUnrecoverableNotRetried(t *testing.T) {
	var attempts atomic.Int32
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			attempts.Add(1)
			return nil, errors.New(errors.CodeInvalidInput, "bad request", nil)
		},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(3)))

	_, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, nil)
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("unrecoverable error retried %d times", attempts.Load())
	}
}

func TestCompleteStreamingDeltas(t *testing.T) {
	provider := &MockProvider{
		Tools: true,
		StreamFunc: func(ctx context.Context, req ChatRequest) []StreamChunk {
			return []StreamChunk{
				{Content: "Hel"},
				{Content: "lo"},
				{Done: true, Usage: &Usage{TotalTokens: 5}},
			}
		},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(1)))

	var deltas []string
	turn, err := adapter.Complete(context.Background(), ChatRequest{Model: "test"}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if turn.Content != "Hello" {
		t.Fatalf("content = %q", turn.Content)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("deltas = %v", deltas)
	}
	if turn.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", turn.Usage)
	}
}

func TestCompleteCancellation(t *testing.T) {
	provider := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	adapter := NewAdapter(provider, WithRetry(fastRetry(3)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := adapter.Complete(ctx, ChatRequest{Model: "test"}, nil)
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
}

func TestScriptedProviderSequence(t *testing.T) {
	provider := NewScriptedProvider(
		ScriptToolCall("c1", "calculator", `{"expression": "2+2"}`),
		ScriptText("The answer is 4"),
	)

	first, err := provider.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first.ToolCalls) != 1 || first.ToolCalls[0].Function.Name != "calculator" {
		t.Fatalf("first = %+v", first)
	}

	second, err := provider.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Content != "The answer is 4" {
		t.Fatalf("second = %+v", second)
	}

	if _, err := provider.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("exhausted script must error")
	}
	if provider.CallCount != 3 {
		t.Fatalf("call count = %d", provider.CallCount)
	}
}
