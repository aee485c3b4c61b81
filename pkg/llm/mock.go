// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
)

// MockProvider is a testing implementation of Provider.
type MockProvider struct {
	Response  string
	ToolCalls []ToolCall
	Err       error
	Tools     bool
	ChatFunc  func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// StreamFunc, when set, makes the mock a StreamingProvider that feeds
	// the given chunks in order.
	StreamFunc func(ctx context.Context, req ChatRequest) []StreamChunk
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content:   m.Response,
		ToolCalls: m.ToolCalls,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// ChatStream implements StreamingProvider when StreamFunc is set; otherwise
// it degrades to a single-chunk stream built from the Chat response.
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	chunks := make(chan StreamChunk, 16)

	if m.StreamFunc != nil {
		scripted := m.StreamFunc(ctx, req)
		go func() {
			defer close(chunks)
			for _, c := range scripted {
				select {
				case <-ctx.Done():
					return
				case chunks <- c:
				}
			}
		}()
		return chunks, nil
	}

	resp, err := m.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(chunks)
		if resp.Content != "" {
			chunks <- StreamChunk{Content: resp.Content}
		}
		chunks <- StreamChunk{Done: true, ToolCalls: resp.ToolCalls, Usage: &resp.Usage}
	}()
	return chunks, nil
}

// SupportsTools implements ToolCapable.
func (m *MockProvider) SupportsTools() bool { return m.Tools }

// FailingMockProvider always fails.
type FailingMockProvider struct {
	Err error
}

func (f *FailingMockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if f.Err == nil {
		return nil, fmt.Errorf("mock error")
	}
	return nil, f.Err
}
