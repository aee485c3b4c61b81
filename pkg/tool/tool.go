// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool owns the mapping from tool name to executable capability and
// runs invocations safely: arguments are validated before the body runs,
// every call carries a deadline, and per-tool concurrency is bounded.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noema-ai/noema/pkg/llm"
)

// Definition describes a tool to the registry and to the model.
type Definition struct {
	// Name identifies the tool; unique within a registry.
	Name string

	// Description tells the model what the tool does.
	Description string

	// Parameters is a JSON Schema for the arguments. Nil means any
	// arguments are accepted.
	Parameters map[string]any

	// Timeout bounds one invocation. Zero means no per-call deadline.
	Timeout time.Duration

	// MaxConcurrent bounds simultaneous invocations of this tool within a
	// step. Zero means unbounded; excess calls queue, never drop.
	MaxConcurrent int
}

// Tool is an executable capability.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, arguments map[string]any) (any, error)
}

// InvokeFunc is a plain function tool body.
type InvokeFunc func(ctx context.Context, arguments map[string]any) (any, error)

type funcTool struct {
	def Definition
	fn  InvokeFunc
}

// New wraps a plain function as a Tool.
func New(def Definition, fn InvokeFunc) Tool {
	return &funcTool{def: def, fn: fn}
}

func (t *funcTool) Definition() Definition { return t.def }

func (t *funcTool) Invoke(ctx context.Context, arguments map[string]any) (any, error) {
	return t.fn(ctx, arguments)
}

// Result is the outcome of one tool invocation. Failures are values, not
// raised errors; the engine feeds them back to the model as tool messages.
type Result struct {
	CallID   string
	ToolName string
	Value    any
	Err      error
	Duration time.Duration
}

// Success reports whether the invocation succeeded.
func (r Result) Success() bool { return r.Err == nil }

// Message renders the result as a tool-role message for the transcript.
func (r Result) Message() llm.Message {
	content := r.Content()
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: r.CallID,
	}
}

// Content renders the result value (or error) as text for the model.
func (r Result) Content() string {
	if r.Err != nil {
		return fmt.Sprintf("tool %q failed: %v", r.ToolName, r.Err)
	}
	switch v := r.Value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
