// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package vector provides a nearest-neighbor store keyed by embeddings with
// metadata filtering. The in-memory implementation is the reference; remote
// backends (qdrant) plug in behind the same Store interface.
package vector

import (
	"context"
	"time"
)

// Metric selects how similarity between vectors is scored.
type Metric string

const (
	// Cosine similarity (normalized dot product). The default.
	Cosine Metric = "cosine"
	// Euclidean distance (L2). Scores are negated distances so that
	// higher is always better.
	Euclidean Metric = "euclidean"
	// Dot product similarity.
	Dot Metric = "dot"
)

// Record is one stored point: an embedding plus its payload.
type Record struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SearchResult is one query hit. Results are ordered by Score, best first;
// equal scores keep insertion order.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
	Count     int    `json:"count"`
	Capacity  int    `json:"capacity,omitempty"` // 0 means unbounded
}

// Store is the vector index contract. All operations either fully succeed
// or fully fail; a query never observes a partially applied upsert.
type Store interface {
	// CreateCollection creates a named collection. Fails with
	// DIMENSION_INVALID when dimension <= 0 and ALREADY_EXISTS when the
	// name is taken.
	CreateCollection(ctx context.Context, name string, dimension int, metric Metric) error

	// EnsureCollection is the idempotent variant of CreateCollection.
	EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error

	// Upsert inserts or replaces a record and returns its id (generated
	// when empty). Fails with DIMENSION_MISMATCH when the vector length
	// does not match the collection, COLLECTION_FULL when a capacity
	// limit rejects a new insert. The record is visible to the next query.
	Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) (string, error)

	// Query returns up to topK results ordered best-first. topK is
	// clamped to the collection size. Every returned result satisfies
	// filter exactly; a nil filter matches everything.
	Query(ctx context.Context, collection string, vec []float32, topK int, filter Filter) ([]SearchResult, error)

	// UpdateByID atomically replaces an existing record. Fails with
	// NOT_FOUND when the id is absent.
	UpdateByID(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error

	// DeleteByID removes a record. Fails with NOT_FOUND when absent.
	DeleteByID(ctx context.Context, collection, id string) error

	// EvictOldest removes up to n records in insertion order and returns
	// how many were removed. Eviction is always explicit, never a side
	// effect of Upsert.
	EvictOldest(ctx context.Context, collection string, n int) (int, error)

	// Info describes a collection. Fails with NOT_FOUND when absent.
	Info(ctx context.Context, collection string) (CollectionInfo, error)
}
