// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package core holds the shared event model and context plumbing for the
// execution engine.
package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted during an execution.
type EventType string

const (
	EventTextDelta          EventType = "generation.text_delta"
	EventToolCallStart      EventType = "tool_call.start"
	EventToolCallComplete   EventType = "tool_call.complete"
	EventStepComplete       EventType = "step.complete"
	EventGenerationComplete EventType = "generation.complete"
	EventWarning            EventType = "execution.warning"
	EventError              EventType = "execution.error"
)

// Event captures a semantic streaming event. Events for a single
// conversation are published in generation order; across concurrent tool
// calls consumers must correlate by CallID, not arrival order.
type Event struct {
	Type           EventType
	ConversationID string
	Step           int
	CallID         string
	Timestamp      time.Time
	Payload        map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, conversationID string, step int, payload map[string]any) Event {
	return Event{
		Type:           eventType,
		ConversationID: conversationID,
		Step:           step,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
	}
}
