// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/llm"
	"github.com/noema-ai/noema/pkg/vector"
)

func TestWorkingMemoryEntryBudget(t *testing.T) {
	w := NewWorkingMemory(3, 0)
	for i := 0; i < 5; i++ {
		w.Push(llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	snap := w.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].Content != "msg-2" || snap[2].Content != "msg-4" {
		t.Fatalf("wrong window: %+v", snap)
	}
}

func TestWorkingMemoryTokenBudget(t *testing.T) {
	// Each message is ~10 tokens (40 chars / 4); budget fits two.
	w := NewWorkingMemory(0, 25)
	long := strings.Repeat("x", 40)
	for i := 0; i < 4; i++ {
		w.Push(llm.Message{Role: llm.RoleUser, Content: long})
	}
	if got := w.Len(); got != 2 {
		t.Fatalf("expected 2 entries under token budget, got %d", got)
	}
}

func TestWorkingMemorySnapshotIsCopy(t *testing.T) {
	w := NewWorkingMemory(10, 0)
	w.Push(llm.Message{Role: llm.RoleUser, Content: "a"})

	snap := w.Snapshot()
	snap[0].Content = "mutated"

	if w.Snapshot()[0].Content != "a" {
		t.Fatal("snapshot mutation leaked into buffer")
	}
}

func newSemantic(t *testing.T) *SemanticMemory {
	t.Helper()
	sm := NewSemanticMemory(vector.NewInMemoryStore(), &MockEmbedder{Dim: 8}, "mem")
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return sm
}

func TestSemanticRememberAndRecall(t *testing.T) {
	sm := newSemantic(t)
	ctx := context.Background()

	id, err := sm.Remember(ctx, "the capital of France is Paris", map[string]any{"topic": "geo"})
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if id == "" {
		t.Fatal("remember must return an id")
	}
	if _, err := sm.Remember(ctx, "water boils at 100C", nil); err != nil {
		t.Fatalf("remember: %v", err)
	}

	// Identical text embeds identically, so it must be the best hit.
	hits, err := sm.Recall(ctx, "the capital of France is Paris", 2, nil)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Text != "the capital of France is Paris" {
		t.Fatalf("best hit = %q", hits[0].Text)
	}
	if hits[0].Metadata["topic"] != "geo" {
		t.Fatalf("metadata lost: %+v", hits[0].Metadata)
	}
}

func TestSemanticRecallEmptyStore(t *testing.T) {
	sm := newSemantic(t)

	hits, err := sm.Recall(context.Background(), "anything", 5, nil)
	if err != nil {
		t.Fatalf("recall on empty store: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestSemanticEmbeddingFailureSurfaces(t *testing.T) {
	sm := NewSemanticMemory(vector.NewInMemoryStore(), &MockEmbedder{Err: fmt.Errorf("model down")}, "mem")

	_, err := sm.Remember(context.Background(), "text", nil)
	if !errors.IsCode(err, errors.CodeEmbeddingFailed) {
		t.Fatalf("expected EMBEDDING_FAILED, got %v", err)
	}
}

func TestBuildContextPinsSystemMessages(t *testing.T) {
	m := NewManager()

	conv := NewConversation("c1")
	conv.Append(llm.Message{Role: llm.RoleSystem, Content: "you are helpful"})
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "hi"})
	m.Observe("c1", llm.Message{Role: llm.RoleUser, Content: "hi"})

	msgs, err := m.BuildContext(context.Background(), conv, 0)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %+v", msgs)
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Fatalf("system message not first: %+v", msgs)
	}
}

func TestBuildContextDeterministic(t *testing.T) {
	sm := newSemantic(t)
	if _, err := sm.Remember(context.Background(), "user prefers metric units", nil); err != nil {
		t.Fatalf("remember: %v", err)
	}
	m := NewManager(WithSemantic(sm))

	conv := NewConversation("c1")
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "how tall is the Eiffel Tower?"})
	m.Observe("c1", llm.Message{Role: llm.RoleUser, Content: "how tall is the Eiffel Tower?"})

	first, err := m.BuildContext(context.Background(), conv, 1000)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	second, err := m.BuildContext(context.Background(), conv, 1000)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs disagree:\n%+v\n%+v", first, second)
	}
}

func TestBuildContextRecallInjected(t *testing.T) {
	sm := newSemantic(t)
	if _, err := sm.Remember(context.Background(), "the meeting is on Tuesday", nil); err != nil {
		t.Fatalf("remember: %v", err)
	}
	m := NewManager(WithSemantic(sm))

	conv := NewConversation("c1")
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "when is the meeting?"})
	m.Observe("c1", llm.Message{Role: llm.RoleUser, Content: "when is the meeting?"})

	msgs, err := m.BuildContext(context.Background(), conv, 1000)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}

	found := false
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem && strings.Contains(msg.Content, "the meeting is on Tuesday") {
			found = true
		}
	}
	if !found {
		t.Fatalf("recall not injected: %+v", msgs)
	}
}

func TestBuildContextTrimsOldestToBudget(t *testing.T) {
	m := NewManager()
	conv := NewConversation("c1")

	long := strings.Repeat("x", 40) // ~10 tokens each
	for i := 0; i < 5; i++ {
		msg := llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf("%d-%s", i, long)}
		conv.Append(msg)
		m.Observe("c1", msg)
	}

	msgs, err := m.BuildContext(context.Background(), conv, 25)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages within budget, got %d", len(msgs))
	}
	// Newest entries survive.
	if !strings.HasPrefix(msgs[0].Content, "3-") || !strings.HasPrefix(msgs[1].Content, "4-") {
		t.Fatalf("wrong window: %+v", msgs)
	}
}

func TestBuildContextBuffersIsolatedPerConversation(t *testing.T) {
	m := NewManager()

	m.Observe("a", llm.Message{Role: llm.RoleUser, Content: "only in a"})
	m.Observe("b", llm.Message{Role: llm.RoleUser, Content: "only in b"})

	msgs, err := m.BuildContext(context.Background(), NewConversation("a"), 0)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "only in a" {
		t.Fatalf("conversation windows leaked: %+v", msgs)
	}

	m.Release("a")
	msgs, _ = m.BuildContext(context.Background(), NewConversation("a"), 0)
	if len(msgs) != 0 {
		t.Fatalf("released buffer still visible: %+v", msgs)
	}
}

func TestConversationStepNumbersGapless(t *testing.T) {
	conv := NewConversation("c1")
	for i := 0; i < 3; i++ {
		n := conv.FinalizeStep("step", nil, nil)
		if n != i+1 {
			t.Fatalf("step number = %d, want %d", n, i+1)
		}
	}
	for i, s := range conv.Steps() {
		if s.Number != i+1 {
			t.Fatalf("gap in step numbers: %+v", conv.Steps())
		}
	}
}

func TestConversationSnapshotRoundTrip(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(llm.Message{Role: llm.RoleSystem, Content: "be brief"})
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "what is 2+2?"})
	conv.Append(llm.Message{Role: llm.RoleAssistant, Content: "4"})
	conv.FinalizeStep("4", nil, nil)

	blob, err := conv.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored, err := RestoreConversation(blob)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID() != "c1" {
		t.Fatalf("id = %q", restored.ID())
	}
	if !reflect.DeepEqual(restored.Messages(), conv.Messages()) {
		t.Fatalf("messages differ:\n%+v\n%+v", restored.Messages(), conv.Messages())
	}
	if restored.StepCount() != 1 {
		t.Fatalf("steps = %d", restored.StepCount())
	}
}

func TestSQLiteSnapshotStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteSnapshotStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	conv := NewConversation("c1")
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "hello"})
	blob, err := conv.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := store.Save(ctx, "c1", blob); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	restored, err := RestoreConversation(loaded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(restored.Messages(), conv.Messages()) {
		t.Fatal("round trip lost messages")
	}

	// Save is an upsert.
	conv.Append(llm.Message{Role: llm.RoleAssistant, Content: "hi"})
	blob, _ = conv.Snapshot()
	if err := store.Save(ctx, "c1", blob); err != nil {
		t.Fatalf("second save: %v", err)
	}
	loaded, _ = store.Load(ctx, "c1")
	restored, _ = RestoreConversation(loaded)
	if len(restored.Messages()) != 2 {
		t.Fatalf("expected 2 messages after upsert, got %d", len(restored.Messages()))
	}

	if err := store.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "c1"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestRehydrateSeedsEmptyBuffer(t *testing.T) {
	m := NewManager()
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "my name is Ada"},
		{Role: llm.RoleAssistant, Content: "noted"},
	}

	m.Rehydrate("c1", history)
	out, err := m.BuildContext(context.Background(), NewConversation("c1"), 0)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(out) != 2 || out[0].Content != "my name is Ada" || out[1].Content != "noted" {
		t.Fatalf("rehydrated history missing from context: %+v", out)
	}

	// A buffer that already holds messages is left untouched.
	m.Observe("c2", llm.Message{Role: llm.RoleUser, Content: "live"})
	m.Rehydrate("c2", history)
	out, err = m.BuildContext(context.Background(), NewConversation("c2"), 0)
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if len(out) != 1 || out[0].Content != "live" {
		t.Fatalf("non-empty buffer must not be rehydrated: %+v", out)
	}
}
