// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/noema-ai/noema/pkg/errors"
)

// InMemoryStore is the in-process Store implementation. Safe for concurrent
// use by multiple conversations; writers take the collection lock so a query
// never sees a partially applied upsert.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	mu        sync.RWMutex
	name      string
	dimension int
	metric    Metric
	capacity  int
	records   map[string]*storedRecord
	nextSeq   uint64
}

type storedRecord struct {
	record Record
	vec64  []float64
	seq    uint64 // insertion order, drives tie breaking and eviction
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]*collection)}
}

// CreateCollection implements Store.
func (s *InMemoryStore) CreateCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	return s.createCollection(name, dimension, metric, false, 0)
}

// EnsureCollection implements Store.
func (s *InMemoryStore) EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	return s.createCollection(name, dimension, metric, true, 0)
}

// CreateBoundedCollection creates a collection with a capacity limit.
func (s *InMemoryStore) CreateBoundedCollection(name string, dimension int, metric Metric, capacity int) error {
	return s.createCollection(name, dimension, metric, false, capacity)
}

func (s *InMemoryStore) createCollection(name string, dimension int, metric Metric, idempotent bool, capacity int) error {
	if dimension <= 0 {
		return errors.New(errors.CodeDimensionInvalid, "collection dimension must be positive", nil).
			WithContext("collection", name).
			WithContext("dimension", dimension)
	}
	if metric == "" {
		metric = Cosine
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		if idempotent {
			return nil
		}
		return errors.New(errors.CodeAlreadyExists, "collection already exists", nil).
			WithContext("collection", name)
	}
	s.collections[name] = &collection{
		name:      name,
		dimension: dimension,
		metric:    metric,
		capacity:  capacity,
		records:   make(map[string]*storedRecord),
	}
	return nil
}

// Upsert implements Store.
func (s *InMemoryStore) Upsert(ctx context.Context, name, id string, vec []float32, metadata map[string]any) (string, error) {
	c, err := s.collection(name)
	if err != nil {
		return "", err
	}

	if len(vec) != c.dimension {
		return "", dimensionMismatch(name, c.dimension, len(vec))
	}
	if id == "" {
		id = uuid.New().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, replacing := c.records[id]
	if !replacing && c.capacity > 0 && len(c.records) >= c.capacity {
		return "", errors.New(errors.CodeCollectionFull, "collection capacity reached", nil).
			WithContext("collection", name).
			WithContext("capacity", c.capacity)
	}

	c.nextSeq++
	c.records[id] = &storedRecord{
		record: Record{
			ID:        id,
			Vector:    append([]float32(nil), vec...),
			Metadata:  cloneMetadata(metadata),
			CreatedAt: time.Now().UTC(),
		},
		vec64: toFloat64(vec),
		seq:   c.nextSeq,
	}
	return id, nil
}

// Query implements Store.
func (s *InMemoryStore) Query(ctx context.Context, name string, vec []float32, topK int, filter Filter) ([]SearchResult, error) {
	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.dimension {
		return nil, dimensionMismatch(name, c.dimension, len(vec))
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	query := toFloat64(vec)

	c.mu.RLock()
	type scored struct {
		result SearchResult
		seq    uint64
	}
	candidates := make([]scored, 0, len(c.records))
	for _, sr := range c.records {
		if filter != nil && !filter.Matches(sr.record.Metadata) {
			continue
		}
		candidates = append(candidates, scored{
			result: SearchResult{
				ID:       sr.record.ID,
				Score:    score(c.metric, query, sr.vec64),
				Metadata: cloneMetadata(sr.record.Metadata),
			},
			seq: sr.seq,
		})
	}
	c.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]SearchResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = candidates[i].result
	}
	return results, nil
}

// UpdateByID implements Store.
func (s *InMemoryStore) UpdateByID(ctx context.Context, name, id string, vec []float32, metadata map[string]any) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}
	if len(vec) != c.dimension {
		return dimensionMismatch(name, c.dimension, len(vec))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.records[id]
	if !ok {
		return recordNotFound(name, id)
	}
	existing.record.Vector = append([]float32(nil), vec...)
	existing.record.Metadata = cloneMetadata(metadata)
	existing.vec64 = toFloat64(vec)
	return nil
}

// DeleteByID implements Store.
func (s *InMemoryStore) DeleteByID(ctx context.Context, name, id string) error {
	c, err := s.collection(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return recordNotFound(name, id)
	}
	delete(c.records, id)
	return nil
}

// EvictOldest implements Store.
func (s *InMemoryStore) EvictOldest(ctx context.Context, name string, n int) (int, error) {
	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.records[ids[i]].seq < c.records[ids[j]].seq
	})

	if n > len(ids) {
		n = len(ids)
	}
	for _, id := range ids[:n] {
		delete(c.records, id)
	}
	return n, nil
}

// Info implements Store.
func (s *InMemoryStore) Info(ctx context.Context, name string) (CollectionInfo, error) {
	c, err := s.collection(name)
	if err != nil {
		return CollectionInfo{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return CollectionInfo{
		Name:      c.name,
		Dimension: c.dimension,
		Metric:    c.metric,
		Count:     len(c.records),
		Capacity:  c.capacity,
	}, nil
}

func (s *InMemoryStore) collection(name string) (*collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "collection not found", nil).
			WithContext("collection", name)
	}
	return c, nil
}

// score computes the similarity between query and candidate, higher is
// better for every metric.
func score(metric Metric, query, candidate []float64) float64 {
	switch metric {
	case Euclidean:
		return -floats.Distance(query, candidate, 2)
	case Dot:
		return floats.Dot(query, candidate)
	default: // Cosine
		qn := floats.Norm(query, 2)
		cn := floats.Norm(candidate, 2)
		if qn == 0 || cn == 0 {
			return 0
		}
		sim := floats.Dot(query, candidate) / (qn * cn)
		// Guard against float drift outside [-1, 1].
		return math.Max(-1, math.Min(1, sim))
	}
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

func dimensionMismatch(collection string, want, got int) error {
	return errors.New(errors.CodeDimensionMismatch, "vector dimension does not match collection", nil).
		WithContext("collection", collection).
		WithContext("expected", want).
		WithContext("got", got)
}

func recordNotFound(collection, id string) error {
	return errors.New(errors.CodeNotFound, "record not found", nil).
		WithContext("collection", collection).
		WithContext("id", id)
}
