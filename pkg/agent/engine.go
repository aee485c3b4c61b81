// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noema-ai/noema/pkg/core"
	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/memory"
	"github.com/noema-ai/noema/pkg/telemetry"
)

// State names one phase of an execution.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCompletion State = "awaiting_completion"
	StateExecutingTools     State = "executing_tools"
	StateFinalizing         State = "finalizing"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Status is the terminal outcome of a run. StatusMaxSteps is graceful: the
// loop hit its bound, the transcript is intact, nothing failed.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusMaxSteps  Status = "max_steps_exceeded"
	StatusFailed    Status = "failed"
)

// Result is what every run returns: a terminal status, the final assistant
// text when there is one, all finalized steps, and the terminal error for
// failed runs. Callers never see a bare crash.
type Result struct {
	ConversationID string
	Status         Status
	Output         string
	Steps          []memory.StepRecord
	Usage          llm.Usage
	Err            error
}

// execution is the per-run state machine. It advances on a single goroutine;
// concurrency happens inside tool dispatch only.
type execution struct {
	agent  *Agent
	conv   *memory.Conversation
	state  State
	usage  llm.Usage
	tracer trace.Tracer
}

// Run starts a fresh conversation with the given user input and drives it to
// a terminal state.
func (a *Agent) Run(ctx context.Context, input string) (*Result, error) {
	ctx, conversationID := core.EnsureConversationID(ctx)
	conv := memory.NewConversation(conversationID)

	if a.systemPrompt != "" {
		seed := llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt}
		conv.Append(seed)
		a.memory.Observe(conversationID, seed)
	}
	return a.Resume(ctx, conv, input)
}

// Resume continues an existing conversation with new user input. An empty
// conversation is valid; system instructions count as the seed message.
func (a *Agent) Resume(ctx context.Context, conv *memory.Conversation, input string) (*Result, error) {
	ctx = core.WithConversationID(ctx, conv.ID())
	a.memory.Rehydrate(conv.ID(), conv.Messages())

	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}

	if input != "" {
		msg := llm.Message{Role: llm.RoleUser, Content: input}
		conv.Append(msg)
		a.memory.Observe(conv.ID(), msg)
	}

	exec := &execution{agent: a, conv: conv, state: StateIdle}
	return exec.run(ctx)
}

func (e *execution) run(ctx context.Context) (*Result, error) {
	a := e.agent
	started := time.Now()

	e.tracer = otel.Tracer("noema/agent")
	ctx, span := e.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		telemetry.RunAttributes(a.id, e.conv.ID(), a.model, a.maxSteps)...,
	))
	defer span.End()

	result, err := e.loop(ctx)

	span.SetAttributes(attribute.String(telemetry.AttrTerminalStatus, string(result.Status)))
	a.metrics.RecordRun(ctx, string(result.Status), float64(time.Since(started).Milliseconds()))
	a.logger.InfoContext(ctx, "agent.run.complete",
		"agent_id", a.id,
		"conversation_id", e.conv.ID(),
		"status", result.Status,
		"steps", len(result.Steps),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, err
}

func (e *execution) loop(ctx context.Context) (*Result, error) {
	a := e.agent
	var lastAssistant string

	for step := 1; step <= a.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, step,
				errors.New(errors.CodeContextLost, "execution canceled", err))
		}

		result, content, err := e.step(ctx, step)
		if err != nil {
			return e.fail(ctx, step, err)
		}
		if result != nil {
			return result, nil
		}
		lastAssistant = content
	}

	// The model kept requesting tools until the bound; graceful stop.
	maxStepsErr := errors.New(errors.CodeMaxStepsExceeded, "execution reached max steps", nil).
		WithContext("max_steps", a.maxSteps)
	e.emit(ctx, a.maxSteps, core.Event{
		Type:    core.EventWarning,
		Payload: map[string]any{"reason": "max steps exceeded", "max_steps": a.maxSteps},
	})

	e.state = StateCompleted
	return &Result{
		ConversationID: e.conv.ID(),
		Status:         StatusMaxSteps,
		Output:         lastAssistant,
		Steps:          e.conv.Steps(),
		Usage:          e.usage,
		Err:            maxStepsErr,
	}, nil
}

// step runs one loop iteration under its own span. A non-nil Result means
// the run reached a terminal state; otherwise the returned content is the
// assistant text accompanying the step's tool calls.
func (e *execution) step(ctx context.Context, step int) (*Result, string, error) {
	a := e.agent
	ctx, span := e.tracer.Start(ctx, "agent.step")
	defer span.End()

	turn, err := e.completeStep(ctx, step)
	if err != nil {
		return nil, "", err
	}
	span.SetAttributes(telemetry.StepAttributes(step, len(turn.ToolCalls))...)
	e.usage.PromptTokens += turn.Usage.PromptTokens
	e.usage.CompletionTokens += turn.Usage.CompletionTokens
	e.usage.TotalTokens += turn.Usage.TotalTokens

	if turn.Disagreement {
		e.emit(ctx, step, core.Event{
			Type: core.EventWarning,
			Payload: map[string]any{
				"reason": "tool call parse disagreement, structured results used",
				"source": string(turn.Source),
			},
		})
	}

	if len(turn.ToolCalls) == 0 {
		// Text-only turn ends the loop.
		e.state = StateFinalizing
		assistant := llm.Message{Role: llm.RoleAssistant, Content: turn.Content}
		e.conv.Append(assistant)
		a.memory.Observe(e.conv.ID(), assistant)
		e.conv.FinalizeStep(turn.Content, nil, nil)
		a.metrics.RecordStep(ctx, 0)

		e.emit(ctx, step, core.Event{Type: core.EventStepComplete})
		e.emit(ctx, step, core.Event{
			Type:    core.EventGenerationComplete,
			Payload: map[string]any{"content": turn.Content},
		})

		e.state = StateCompleted
		return &Result{
			ConversationID: e.conv.ID(),
			Status:         StatusCompleted,
			Output:         turn.Content,
			Steps:          e.conv.Steps(),
			Usage:          e.usage,
		}, turn.Content, nil
	}

	if err := e.executeTools(ctx, step, turn); err != nil {
		return nil, "", err
	}
	return nil, turn.Content, nil
}

// completeStep assembles context and runs one completion.
func (e *execution) completeStep(ctx context.Context, step int) (*llm.ModelTurn, error) {
	a := e.agent
	e.state = StateAwaitingCompletion

	messages, err := a.memory.BuildContext(ctx, e.conv, a.contextBudget)
	if err != nil {
		return nil, err
	}

	req := llm.ChatRequest{
		Model:    a.model,
		Messages: messages,
		Tools:    a.registry.Definitions(),
	}

	var onDelta llm.DeltaFunc
	if a.streaming {
		onDelta = func(delta string) {
			e.emit(ctx, step, core.Event{
				Type:    core.EventTextDelta,
				Payload: map[string]any{"delta": delta},
			})
		}
	}

	stepCtx := ctx
	if a.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, a.stepTimeout)
		defer cancel()
	}

	return a.adapter.Complete(stepCtx, req, onDelta)
}

// executeTools dispatches the turn's tool calls and feeds results back into
// the transcript as tool messages.
func (e *execution) executeTools(ctx context.Context, step int, turn *llm.ModelTurn) error {
	a := e.agent
	e.state = StateExecutingTools

	calls := turn.ToolCalls
	if len(calls) > a.maxToolCalls {
		e.emit(ctx, step, core.Event{
			Type: core.EventWarning,
			Payload: map[string]any{
				"code":           string(errors.CodeTooManyToolCalls),
				"reason":         "too many tool calls, excess truncated",
				"requested":      len(calls),
				"max_tool_calls": a.maxToolCalls,
			},
		})
		a.logger.WarnContext(ctx, "agent.tool.truncated",
			"conversation_id", e.conv.ID(),
			"requested", len(calls),
			"max_tool_calls", a.maxToolCalls,
		)
		calls = calls[:a.maxToolCalls]
	}

	assistant := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   turn.Content,
		ToolCalls: calls,
	}
	e.conv.Append(assistant)
	a.memory.Observe(e.conv.ID(), assistant)

	for _, call := range calls {
		e.emitCall(ctx, step, call.ID, core.Event{
			Type: core.EventToolCallStart,
			Payload: map[string]any{
				"tool":      call.Function.Name,
				"arguments": call.Function.Arguments,
			},
		})
	}

	toolCtx := core.WithStep(ctx, step)
	results, _ := a.invoker.InvokeAll(toolCtx, calls)

	span := trace.SpanFromContext(ctx)
	toolMessages := make([]llm.Message, 0, len(results))
	for _, res := range results {
		span.AddEvent("tool.call", trace.WithAttributes(
			telemetry.ToolCallAttributes(res.ToolName, res.CallID, res.Duration.Milliseconds(), res.Success())...,
		))
		e.emitCall(ctx, step, res.CallID, core.Event{
			Type: core.EventToolCallComplete,
			Payload: map[string]any{
				"tool":        res.ToolName,
				"success":     res.Success(),
				"duration_ms": res.Duration.Milliseconds(),
			},
		})
		a.metrics.RecordToolCall(ctx, res.ToolName, res.Success(), float64(res.Duration.Milliseconds()))
		a.logger.InfoContext(ctx, "agent.tool.call",
			"conversation_id", e.conv.ID(),
			"step", step,
			"tool", res.ToolName,
			"call_id", res.CallID,
			"success", res.Success(),
			"duration_ms", res.Duration.Milliseconds(),
		)

		// Failures become tool messages too; the model decides what to do.
		msg := res.Message()
		toolMessages = append(toolMessages, msg)
		e.conv.Append(msg)
		a.memory.Observe(e.conv.ID(), msg)
	}

	e.conv.FinalizeStep(turn.Content, calls, toolMessages)
	a.metrics.RecordStep(ctx, len(calls))
	e.emit(ctx, step, core.Event{Type: core.EventStepComplete})
	return nil
}

// fail transitions to Failed. Already-finalized steps remain in the
// transcript; the audit trail is never rolled back.
func (e *execution) fail(ctx context.Context, step int, err error) (*Result, error) {
	a := e.agent
	e.state = StateFailed

	ne := errors.AsNoemaError(err)
	e.emit(ctx, step, core.Event{
		Type: core.EventError,
		Payload: map[string]any{
			"code":  string(ne.Code),
			"error": err.Error(),
		},
	})
	a.metrics.RecordError(ctx, err, "engine")
	a.logger.ErrorContext(ctx, "agent.run.error",
		"agent_id", a.id,
		"conversation_id", e.conv.ID(),
		"step", step,
		"state", string(e.state),
		"code", string(ne.Code),
		"recoverable", ne.RecoverableString(),
		"error", err,
	)

	return &Result{
		ConversationID: e.conv.ID(),
		Status:         StatusFailed,
		Steps:          e.conv.Steps(),
		Usage:          e.usage,
		Err:            err,
	}, err
}

func (e *execution) emit(ctx context.Context, step int, event core.Event) {
	e.emitCall(ctx, step, "", event)
}

func (e *execution) emitCall(ctx context.Context, step int, callID string, event core.Event) {
	event.ConversationID = e.conv.ID()
	event.Step = step
	event.CallID = callID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.agent.emitter.Emit(ctx, event)
}
