// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/telemetry"
)

// Manager presents one coherent context-building API over the working and
// semantic tiers. Working buffers are kept per conversation so concurrent
// executions never share a window; the semantic tier is shared and safe for
// concurrent use. BuildContext is deterministic given the same inputs.
type Manager struct {
	mu      sync.Mutex
	buffers map[string]*WorkingMemory

	workingEntries int
	workingTokens  int

	semantic    *SemanticMemory
	ragEnabled  bool
	recallTopK  int
	recallScore float64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWorkingBudget bounds each conversation's working buffer. Zero means
// unbounded on that axis.
func WithWorkingBudget(maxEntries, maxTokens int) ManagerOption {
	return func(m *Manager) {
		m.workingEntries = maxEntries
		m.workingTokens = maxTokens
	}
}

// WithSemantic attaches a semantic tier and enables recall during
// BuildContext.
func WithSemantic(sm *SemanticMemory) ManagerOption {
	return func(m *Manager) {
		m.semantic = sm
		m.ragEnabled = true
	}
}

// WithRecallTopK sets how many memories recall retrieves per turn.
func WithRecallTopK(k int) ManagerOption {
	return func(m *Manager) { m.recallTopK = k }
}

// WithMinRecallScore drops recall hits scoring below the threshold.
func WithMinRecallScore(score float64) ManagerOption {
	return func(m *Manager) { m.recallScore = score }
}

// NewManager creates a memory manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		buffers:        make(map[string]*WorkingMemory),
		workingEntries: 50,
		workingTokens:  4000,
		recallTopK:     3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe records a message into the conversation's working buffer.
func (m *Manager) Observe(conversationID string, msg llm.Message) {
	m.working(conversationID).Push(msg)
}

// Rehydrate seeds an empty working buffer from a restored transcript, so a
// conversation loaded from a snapshot keeps its history in context. Buffers
// that already hold messages are left untouched.
func (m *Manager) Rehydrate(conversationID string, msgs []llm.Message) {
	w := m.working(conversationID)
	if w.Len() > 0 {
		return
	}
	for _, msg := range msgs {
		w.Push(msg)
	}
}

// Release drops the working buffer for a finished conversation.
func (m *Manager) Release(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, conversationID)
}

// Remember stores text in the semantic tier. No-op when no semantic tier is
// attached.
func (m *Manager) Remember(ctx context.Context, text string, metadata map[string]any) (string, error) {
	if m.semantic == nil {
		return "", nil
	}
	return m.semantic.Remember(ctx, text, metadata)
}

// Recall queries the semantic tier directly. Empty when none is attached.
func (m *Manager) Recall(ctx context.Context, query string, topK int) ([]Recalled, error) {
	if m.semantic == nil {
		return []Recalled{}, nil
	}
	return m.semantic.Recall(ctx, query, topK, nil)
}

// BuildContext assembles the message list for one model turn, bounded by an
// approximate token budget. System messages from the conversation are pinned
// first, recalled memories (when enabled and budget remains) follow as a
// system message, then the working window trimmed oldest-first to fit.
func (m *Manager) BuildContext(ctx context.Context, conv *Conversation, budget int) ([]llm.Message, error) {
	var result []llm.Message
	used := 0

	for _, msg := range conv.Messages() {
		if msg.Role == llm.RoleSystem {
			result = append(result, msg)
			used += EstimateTokens(msg)
		}
	}

	recalled := 0
	if m.ragEnabled && m.semantic != nil && (budget <= 0 || used < budget) {
		recallMsg, hits, err := m.recallContext(ctx, conv)
		if err != nil {
			return nil, err
		}
		if hits > 0 {
			cost := EstimateTokens(recallMsg)
			if budget <= 0 || used+cost <= budget {
				result = append(result, recallMsg)
				used += cost
				recalled = hits
			}
		}
	}

	window := m.working(conv.ID()).Snapshot()
	kept := make([]llm.Message, 0, len(window))
	keptTokens := 0
	for i := len(window) - 1; i >= 0; i-- {
		msg := window[i]
		if msg.Role == llm.RoleSystem {
			// Already pinned from the conversation.
			continue
		}
		cost := EstimateTokens(msg)
		if budget > 0 && used+keptTokens+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, msg)
		keptTokens += cost
	}
	// kept was collected newest-first; restore order.
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i])
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.MemoryAttributes(m.ragEnabled, recalled, len(result))...)
	return result, nil
}

func (m *Manager) working(conversationID string) *WorkingMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.buffers[conversationID]
	if !ok {
		w = NewWorkingMemory(m.workingEntries, m.workingTokens)
		m.buffers[conversationID] = w
	}
	return w
}

// recallContext embeds the most recent user message and folds the recall
// hits into one system message. Returns the number of hits folded in.
func (m *Manager) recallContext(ctx context.Context, conv *Conversation) (llm.Message, int, error) {
	query := lastUserContent(conv)
	if query == "" {
		return llm.Message{}, 0, nil
	}

	hits, err := m.semantic.Recall(ctx, query, m.recallTopK, nil)
	if err != nil {
		return llm.Message{}, 0, err
	}

	var lines []string
	for _, h := range hits {
		if m.recallScore > 0 && h.Score < m.recallScore {
			continue
		}
		if h.Text != "" {
			lines = append(lines, "- "+h.Text)
		}
	}
	if len(lines) == 0 {
		return llm.Message{}, 0, nil
	}

	return llm.Message{
		Role:    llm.RoleSystem,
		Content: "Relevant context from memory:\n" + strings.Join(lines, "\n"),
	}, len(lines), nil
}

func lastUserContent(conv *Conversation) string {
	messages := conv.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
