// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, cancelA := bus.Subscribe(8)
	b, cancelB := bus.Subscribe(8)
	defer cancelA()
	defer cancelB()

	bus.Emit(context.Background(), NewEvent(EventStepComplete, "conv-1", 1, nil))

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		evt := <-ch
		if evt.Type != EventStepComplete || evt.ConversationID != "conv-1" {
			t.Fatalf("subscriber %s got unexpected event %+v", name, evt)
		}
	}
}

func TestBusPreservesPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(16)
	defer cancel()

	types := []EventType{EventTextDelta, EventToolCallStart, EventToolCallComplete, EventStepComplete}
	for i, typ := range types {
		bus.Emit(context.Background(), NewEvent(typ, "conv-1", i, nil))
	}

	for i, want := range types {
		got := <-ch
		if got.Type != want {
			t.Fatalf("event %d: got %s, want %s", i, got.Type, want)
		}
	}
}

func TestBusNoSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	// Must return immediately even with nobody listening.
	bus.Emit(context.Background(), NewEvent(EventError, "conv-1", 0, nil))
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(context.Background(), NewEvent(EventTextDelta, "c", 0, map[string]any{"i": 0}))
	bus.Emit(context.Background(), NewEvent(EventTextDelta, "c", 0, map[string]any{"i": 1}))

	evt := <-ch
	if evt.Payload["i"] != 0 {
		t.Fatalf("expected first event to survive, got %+v", evt)
	}
	select {
	case extra := <-ch:
		t.Fatalf("expected second event to be dropped, got %+v", extra)
	default:
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatal("subscriber not removed")
	}
}

func TestEnsureConversationID(t *testing.T) {
	ctx, id := EnsureConversationID(context.Background())
	if id == "" {
		t.Fatal("expected generated id")
	}
	ctx2, id2 := EnsureConversationID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatal("existing id must be reused")
	}

	ctx = WithStep(ctx, 3)
	if step, ok := Step(ctx); !ok || step != 3 {
		t.Fatal("step not propagated")
	}
}
