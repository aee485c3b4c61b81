// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the two-tier memory backing agent conversations:
// a bounded working buffer of recent messages and a semantic tier backed by
// a vector store.
package memory

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder turns text into a vector. Implementations wrap an embedding model
// endpoint; the dimension must be stable across calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MockEmbedder is a deterministic embedder for tests. Identical texts embed
// to identical unit vectors; different texts almost always differ.
type MockEmbedder struct {
	Dim int
	Err error
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	dim := m.Dim
	if dim == 0 {
		dim = 8
	}

	vec := make([]float32, dim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed>>32)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}
