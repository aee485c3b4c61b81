// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"sync"
)

// ScriptedProvider returns a pre-defined sequence of responses. Useful for
// testing multi-turn interactions such as the tool-calling loop.
type ScriptedProvider struct {
	mu        sync.Mutex
	Responses []ChatResponse
	Err       error
	Tools     bool
	// CallCount tracks how many times Chat has been called.
	CallCount int
}

// NewScriptedProvider creates a provider that pops one response per call.
func NewScriptedProvider(responses ...ChatResponse) *ScriptedProvider {
	return &ScriptedProvider{Responses: responses, Tools: true}
}

// ScriptText is shorthand for a plain text response.
func ScriptText(content string) ChatResponse {
	return ChatResponse{
		Content: content,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// ScriptToolCall is shorthand for a response requesting one tool call.
func ScriptToolCall(id, name, arguments string) ChatResponse {
	return ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: name, Arguments: arguments},
		}},
		Usage: Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}
}

// Chat pops the next scripted response or returns the configured error.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New("scripted provider: no more responses available")
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	return &resp, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedProvider) AddResponse(resp ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, resp)
}

// SupportsTools implements ToolCapable.
func (s *ScriptedProvider) SupportsTools() bool { return s.Tools }
