// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/llm"
)

// StepRecord is one finalized step of an execution: the model turn that
// drove it and the tool results it produced. Records are append-only and
// numbered gaplessly from 1.
type StepRecord struct {
	Number      int            `json:"number"`
	Content     string         `json:"content,omitempty"`
	ToolCalls   []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolResults []llm.Message  `json:"tool_results,omitempty"`
	FinalizedAt time.Time      `json:"finalized_at"`
}

// Conversation is the append-only transcript of one agent execution:
// ordered messages plus finalized step records. Already-finalized content is
// never rolled back.
type Conversation struct {
	mu       sync.RWMutex
	id       string
	messages []llm.Message
	steps    []StepRecord
	started  time.Time
}

type conversationSnapshot struct {
	ID        string        `json:"id"`
	Messages  []llm.Message `json:"messages"`
	Steps     []StepRecord  `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
}

// NewConversation creates an empty conversation. An empty conversation is a
// valid starting state; system instructions count as the seed message.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, started: time.Now().UTC()}
}

// ID returns the conversation id.
func (c *Conversation) ID() string { return c.id }

// Append adds a message to the transcript.
func (c *Conversation) Append(msg llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the ordered transcript.
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// FinalizeStep appends a step record, assigning the next gapless number.
// Returns the assigned number.
func (c *Conversation) FinalizeStep(content string, toolCalls []llm.ToolCall, toolResults []llm.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	number := len(c.steps) + 1
	c.steps = append(c.steps, StepRecord{
		Number:      number,
		Content:     content,
		ToolCalls:   toolCalls,
		ToolResults: toolResults,
		FinalizedAt: time.Now().UTC(),
	})
	return number
}

// Steps returns a copy of the finalized step records.
func (c *Conversation) Steps() []StepRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StepRecord, len(c.steps))
	copy(out, c.steps)
	return out
}

// StepCount returns the number of finalized steps.
func (c *Conversation) StepCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.steps)
}

// Snapshot serializes the conversation to an opaque blob. Round-tripping
// through RestoreConversation reproduces the same message order and content.
func (c *Conversation) Snapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blob, err := json.Marshal(conversationSnapshot{
		ID:        c.id,
		Messages:  c.messages,
		Steps:     c.steps,
		StartedAt: c.started,
	})
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "failed to serialize conversation", err).
			WithContext("conversation_id", c.id)
	}
	return blob, nil
}

// RestoreConversation rebuilds a conversation from a snapshot blob.
func RestoreConversation(blob []byte) (*Conversation, error) {
	var snap conversationSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, errors.New(errors.CodeMemoryError, "failed to parse conversation snapshot", err)
	}
	return &Conversation{
		id:       snap.ID,
		messages: snap.Messages,
		steps:    snap.Steps,
		started:  snap.StartedAt,
	}, nil
}
