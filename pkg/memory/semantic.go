// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"time"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/vector"
)

// textField is the payload key the original text is stored under.
const textField = "text"

// Recalled is one semantic memory hit, in similarity order.
type Recalled struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// SemanticMemory stores and retrieves text by embedding similarity.
type SemanticMemory struct {
	store      vector.Store
	embedder   Embedder
	collection string
	metric     vector.Metric

	initialized bool
}

// NewSemanticMemory creates a semantic tier over a vector store.
func NewSemanticMemory(store vector.Store, embedder Embedder, collection string) *SemanticMemory {
	return &SemanticMemory{
		store:      store,
		embedder:   embedder,
		collection: collection,
		metric:     vector.Cosine,
	}
}

// Initialize ensures the backing collection exists. The dimension is probed
// from the embedder so callers never have to configure it twice.
func (sm *SemanticMemory) Initialize(ctx context.Context) error {
	vec, err := sm.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return embeddingFailed(err)
	}
	if err := sm.store.EnsureCollection(ctx, sm.collection, len(vec), sm.metric); err != nil {
		return err
	}
	sm.initialized = true
	return nil
}

// Remember embeds text and stores it with its metadata. Returns the record id.
func (sm *SemanticMemory) Remember(ctx context.Context, text string, metadata map[string]any) (string, error) {
	if err := sm.ensureInitialized(ctx); err != nil {
		return "", err
	}

	vec, err := sm.embedder.Embed(ctx, text)
	if err != nil {
		return "", embeddingFailed(err)
	}

	stored := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		stored[k] = v
	}
	stored[textField] = text
	stored["stored_at"] = time.Now().Unix()

	return sm.store.Upsert(ctx, sm.collection, "", vec, stored)
}

// Recall embeds the query and returns the topK most similar memories.
// An empty or uninitialized store yields an empty list, not an error.
func (sm *SemanticMemory) Recall(ctx context.Context, query string, topK int, filter vector.Filter) ([]Recalled, error) {
	if !sm.initialized {
		if err := sm.ensureInitialized(ctx); err != nil {
			return []Recalled{}, nil
		}
	}

	vec, err := sm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, embeddingFailed(err)
	}

	results, err := sm.store.Query(ctx, sm.collection, vec, topK, filter)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return []Recalled{}, nil
		}
		return nil, err
	}

	recalled := make([]Recalled, 0, len(results))
	for _, r := range results {
		text, _ := r.Metadata[textField].(string)
		recalled = append(recalled, Recalled{
			ID:       r.ID,
			Text:     text,
			Score:    r.Score,
			Metadata: r.Metadata,
		})
	}
	return recalled, nil
}

// Forget removes a remembered record by id.
func (sm *SemanticMemory) Forget(ctx context.Context, id string) error {
	return sm.store.DeleteByID(ctx, sm.collection, id)
}

func (sm *SemanticMemory) ensureInitialized(ctx context.Context) error {
	if sm.initialized {
		return nil
	}
	return sm.Initialize(ctx)
}

func embeddingFailed(err error) error {
	return errors.New(errors.CodeEmbeddingFailed, "failed to embed text", err).
		WithRecoverable(true)
}
