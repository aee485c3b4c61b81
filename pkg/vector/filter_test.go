// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import (
	"context"
	"testing"
)

func TestFilterMatching(t *testing.T) {
	meta := map[string]any{
		"kind":  "note",
		"score": 7,
		"lang":  "en",
	}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq match", Eq("kind", "note"), true},
		{"eq miss", Eq("kind", "doc"), false},
		{"eq absent field", Eq("missing", "x"), false},
		{"eq numeric coercion", Eq("score", 7.0), true},
		{"ne match", Ne("kind", "doc"), true},
		{"ne absent field", Ne("missing", "x"), false},
		{"gt", Gt("score", 5), true},
		{"gt equal is false", Gt("score", 7), false},
		{"lt", Lt("score", 10), true},
		{"lt non-numeric field", Lt("kind", 10), false},
		{"in", In("lang", "fr", "en"), true},
		{"in miss", In("lang", "fr", "de"), false},
		{"and", And(Eq("kind", "note"), Gt("score", 5)), true},
		{"and short circuit", And(Eq("kind", "doc"), Gt("score", 5)), false},
		{"or", Or(Eq("kind", "doc"), Eq("lang", "en")), true},
		{"not", Not(Eq("kind", "doc")), true},
		{"nested", And(Not(Eq("lang", "fr")), Or(Gt("score", 100), Lt("score", 8))), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(meta); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

// Metadata may hold slice values; comparing them must not panic.
func TestFilterNonComparableValues(t *testing.T) {
	meta := map[string]any{
		"tags": []string{"draft", "internal"},
		"kind": "note",
	}

	if !Eq("tags", []string{"draft", "internal"}).Matches(meta) {
		t.Fatal("deep-equal slice values must match")
	}
	if Eq("tags", []string{"draft"}).Matches(meta) {
		t.Fatal("different slice values must not match")
	}
	if !Ne("tags", []string{"published"}).Matches(meta) {
		t.Fatal("ne over slice values must match when they differ")
	}
	if In("tags", "draft").Matches(meta) {
		t.Fatal("slice against scalar must not match")
	}
	if !Eq("kind", "note").Matches(meta) {
		t.Fatal("scalar comparison must still work")
	}
}

// Every result returned by a filtered query must satisfy the filter.
func TestQueryFilterExactness(t *testing.T) {
	s := newTestStore(t, 2, Cosine)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		kind := "even"
		if i%2 == 1 {
			kind = "odd"
		}
		meta := map[string]any{"kind": kind, "i": i}
		if _, err := s.Upsert(ctx, "test", "", []float32{float32(i), 1}, meta); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	filter := And(Eq("kind", "even"), Lt("i", 10))
	results, err := s.Query(ctx, "test", []float32{1, 1}, 20, filter)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 5 { // i in {0,2,4,6,8}
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if !filter.Matches(r.Metadata) {
			t.Fatalf("result %s violates filter: %+v", r.ID, r.Metadata)
		}
	}
}

func TestQueryFilterEmptyResult(t *testing.T) {
	s := newTestStore(t, 2, Cosine)
	ctx := context.Background()
	s.Upsert(ctx, "test", "a", []float32{1, 0}, map[string]any{"kind": "x"})

	results, err := s.Query(ctx, "test", []float32{1, 0}, 5, Eq("kind", "y"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}
