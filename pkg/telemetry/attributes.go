// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for execution-core telemetry. LLM attributes follow
// the OpenTelemetry gen_ai conventions where applicable.
const (
	// Execution attributes
	AttrAgentID        = "noema.agent.id"
	AttrConversationID = "noema.conversation.id"
	AttrStepNumber     = "noema.step.number"
	AttrMaxSteps       = "noema.agent.max_steps"
	AttrTerminalStatus = "noema.run.status"

	// Tool attributes
	AttrToolName       = "noema.tool.name"
	AttrToolCallID     = "noema.tool.call_id"
	AttrToolDurationMs = "noema.tool.duration_ms"
	AttrToolSuccess    = "noema.tool.success"
	AttrToolCallCount  = "noema.tools.call_count"

	// Memory attributes
	AttrMemoryEnabled   = "noema.memory.enabled"
	AttrMemoryRecalled  = "noema.memory.recalled_count"
	AttrContextMessages = "noema.context.message_count"

	// LLM attributes
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMParseSource  = "noema.turn.parse_source"
)

// RunAttributes builds span attributes for one execution run.
func RunAttributes(agentID, conversationID, model string, maxSteps int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrConversationID, conversationID),
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrMaxSteps, maxSteps),
	}
}

// StepAttributes builds span attributes for one loop iteration.
func StepAttributes(step, toolCalls int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrStepNumber, step),
		attribute.Int(AttrToolCallCount, toolCalls),
	}
}

// ToolCallAttributes builds span attributes for one tool invocation.
func ToolCallAttributes(name, callID string, durationMs int64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
		attribute.Int64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
}

// MemoryAttributes builds span attributes for context assembly.
func MemoryAttributes(enabled bool, recalled, contextMessages int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(AttrMemoryEnabled, enabled),
		attribute.Int(AttrMemoryRecalled, recalled),
		attribute.Int(AttrContextMessages, contextMessages),
	}
}
