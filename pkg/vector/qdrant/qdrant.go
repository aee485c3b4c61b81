// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package qdrant implements vector.Store on a remote Qdrant instance over
// gRPC. Metadata filters are applied client-side on the returned payloads so
// the post-filter guarantee matches the in-memory store exactly.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/vector"
)

// createdAtField carries insertion time in the payload, used by EvictOldest.
const createdAtField = "_created_at"

// overfetchFactor compensates for client-side filtering: we ask Qdrant for
// more candidates than top_k and trim after the filter runs.
const overfetchFactor = 4

// Store is a Qdrant-backed vector.Store.
type Store struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New connects to a Qdrant gRPC endpoint.
func New(addr string) (*Store, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// CreateCollection implements vector.Store.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int, metric vector.Metric) error {
	if dimension <= 0 {
		return errors.New(errors.CodeDimensionInvalid, "collection dimension must be positive", nil).
			WithContext("collection", name)
	}

	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: distanceFor(metric),
				},
			},
		},
	})
	if err != nil {
		return errors.New(errors.CodeMemoryError, "failed to create collection", err).
			WithContext("collection", name)
	}
	return nil
}

// EnsureCollection implements vector.Store.
func (s *Store) EnsureCollection(ctx context.Context, name string, dimension int, metric vector.Metric) error {
	if exists, err := s.exists(ctx, name); err == nil && exists {
		return nil
	}
	return s.CreateCollection(ctx, name, dimension, metric)
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) (string, error) {
	info, err := s.Info(ctx, collection)
	if err != nil {
		return "", err
	}
	if len(vec) != info.Dimension {
		return "", errors.New(errors.CodeDimensionMismatch, "vector dimension does not match collection", nil).
			WithContext("collection", collection).
			WithContext("expected", info.Dimension).
			WithContext("got", len(vec))
	}
	if id == "" {
		id = uuid.New().String()
	}

	payload := toPayload(metadata)
	payload[createdAtField] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: time.Now().UnixNano()}}

	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points: []*pb.PointStruct{{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return "", errors.New(errors.CodeMemoryError, "failed to upsert point", err).
			WithContext("collection", collection)
	}
	return id, nil
}

// Query implements vector.Store.
func (s *Store) Query(ctx context.Context, collection string, vec []float32, topK int, filter vector.Filter) ([]vector.SearchResult, error) {
	if topK <= 0 {
		return []vector.SearchResult{}, nil
	}

	limit := uint64(topK)
	if filter != nil {
		limit *= overfetchFactor
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "failed to search points", err).
			WithContext("collection", collection)
	}

	results := make([]vector.SearchResult, 0, topK)
	for _, r := range resp.Result {
		metadata := fromPayload(r.Payload)
		if filter != nil && !filter.Matches(metadata) {
			continue
		}
		results = append(results, vector.SearchResult{
			ID:       pointID(r.Id),
			Score:    float64(r.Score),
			Metadata: metadata,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// UpdateByID implements vector.Store.
func (s *Store) UpdateByID(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	if err := s.mustExist(ctx, collection, id); err != nil {
		return err
	}
	_, err := s.Upsert(ctx, collection, id, vec, metadata)
	return err
}

// DeleteByID implements vector.Store.
func (s *Store) DeleteByID(ctx context.Context, collection, id string) error {
	if err := s.mustExist(ctx, collection, id); err != nil {
		return err
	}

	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{uuidID(id)}},
			},
		},
	})
	if err != nil {
		return errors.New(errors.CodeMemoryError, "failed to delete point", err).
			WithContext("collection", collection).
			WithContext("id", id)
	}
	return nil
}

// EvictOldest implements vector.Store. Qdrant has no insertion-order scan,
// so eviction scrolls payloads and sorts on the stored creation timestamp.
func (s *Store) EvictOldest(ctx context.Context, collection string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}

	limit := uint32(4096)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: collection,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return 0, errors.New(errors.CodeMemoryError, "failed to scroll points", err).
			WithContext("collection", collection)
	}

	type aged struct {
		id        *pb.PointId
		createdAt int64
	}
	points := make([]aged, 0, len(resp.Result))
	for _, p := range resp.Result {
		var createdAt int64
		if v, ok := p.Payload[createdAtField]; ok {
			createdAt = v.GetIntegerValue()
		}
		points = append(points, aged{id: p.Id, createdAt: createdAt})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].createdAt < points[j].createdAt })

	if n > len(points) {
		n = len(points)
	}
	if n == 0 {
		return 0, nil
	}

	ids := make([]*pb.PointId, n)
	for i := 0; i < n; i++ {
		ids[i] = points[i].id
	}
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return 0, errors.New(errors.CodeMemoryError, "failed to evict points", err).
			WithContext("collection", collection)
	}
	return n, nil
}

// Info implements vector.Store.
func (s *Store) Info(ctx context.Context, collection string) (vector.CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return vector.CollectionInfo{}, errors.New(errors.CodeNotFound, "collection not found", err).
			WithContext("collection", collection)
	}

	info := vector.CollectionInfo{Name: collection}
	if resp.Result != nil {
		if resp.Result.PointsCount != nil {
			info.Count = int(*resp.Result.PointsCount)
		}
		if params := resp.Result.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
			info.Dimension = int(params.Size)
			info.Metric = metricFor(params.Distance)
		}
	}
	return info, nil
}

func (s *Store) exists(ctx context.Context, collection string) (bool, error) {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) mustExist(ctx context.Context, collection, id string) error {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: collection,
		Ids:            []*pb.PointId{uuidID(id)},
	})
	if err != nil {
		return errors.New(errors.CodeMemoryError, "failed to look up point", err).
			WithContext("collection", collection).
			WithContext("id", id)
	}
	if len(resp.Result) == 0 {
		return errors.New(errors.CodeNotFound, "record not found", nil).
			WithContext("collection", collection).
			WithContext("id", id)
	}
	return nil
}

func distanceFor(metric vector.Metric) pb.Distance {
	switch metric {
	case vector.Euclidean:
		return pb.Distance_Euclid
	case vector.Dot:
		return pb.Distance_Dot
	default:
		return pb.Distance_Cosine
	}
}

func metricFor(distance pb.Distance) vector.Metric {
	switch distance {
	case pb.Distance_Euclid:
		return vector.Euclidean
	case pb.Distance_Dot:
		return vector.Dot
	default:
		return vector.Cosine
	}
}

func uuidID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func toPayload(metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata)+1)
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
		}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == createdAtField {
			continue
		}
		switch kind := v.GetKind().(type) {
		case *pb.Value_StringValue:
			metadata[k] = kind.StringValue
		case *pb.Value_BoolValue:
			metadata[k] = kind.BoolValue
		case *pb.Value_IntegerValue:
			metadata[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			metadata[k] = kind.DoubleValue
		}
	}
	return metadata
}
