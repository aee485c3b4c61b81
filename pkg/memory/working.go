// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sync"

	"github.com/noema-ai/noema/pkg/llm"
)

// WorkingMemory is a bounded, ordered buffer of recent messages. Capacity is
// expressed in entries and approximate tokens; pushing beyond either budget
// evicts oldest entries. Push never blocks.
type WorkingMemory struct {
	mu         sync.Mutex
	entries    []llm.Message
	maxEntries int
	maxTokens  int
}

// NewWorkingMemory creates a buffer bounded by maxEntries and maxTokens.
// A zero bound means unbounded on that axis.
func NewWorkingMemory(maxEntries, maxTokens int) *WorkingMemory {
	return &WorkingMemory{
		maxEntries: maxEntries,
		maxTokens:  maxTokens,
	}
}

// Push appends a message, evicting oldest entries until back under budget.
func (w *WorkingMemory) Push(msg llm.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, msg)

	for w.overBudgetLocked() && len(w.entries) > 1 {
		w.entries = w.entries[1:]
	}
}

// Snapshot returns a copy of the current ordered contents.
func (w *WorkingMemory) Snapshot() []llm.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]llm.Message, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the current entry count.
func (w *WorkingMemory) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Clear drops all entries.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
}

func (w *WorkingMemory) overBudgetLocked() bool {
	if w.maxEntries > 0 && len(w.entries) > w.maxEntries {
		return true
	}
	if w.maxTokens > 0 {
		total := 0
		for _, m := range w.entries {
			total += EstimateTokens(m)
		}
		if total > w.maxTokens {
			return true
		}
	}
	return false
}

// EstimateTokens approximates the token cost of a message as len(content)/4.
func EstimateTokens(msg llm.Message) int {
	return len(msg.Content) / 4
}
