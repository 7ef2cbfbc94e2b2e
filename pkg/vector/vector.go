// Package vector is the Qdrant projection adapter.
//
// One collection per project holds the fragment embeddings; claims get a
// sibling collection. Collections are created lazily on first upsert with
// cosine distance, sized to the embedding the gateway produced.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/axialab/axial/pkg/config"
)

// Point is one embedded item bound for a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store wraps the Qdrant client.
type Store struct {
	client     *qdrant.Client
	maxRetries int
}

// New connects to Qdrant.
func New(cfg *config.VectorConfig) (*Store, error) {
	useTLS := false
	if cfg.EnableTLS != nil {
		useTLS = *cfg.EnableTLS
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &Store{client: client, maxRetries: cfg.MaxRetries}, nil
}

// FragmentCollection names the per-project fragment collection.
func FragmentCollection(projectID string) string {
	return "project_" + projectID + "_fragments"
}

// ClaimCollection names the per-project claim collection.
func ClaimCollection(projectID string) string {
	return "project_" + projectID + "_claims"
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	return err
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Upsert writes a batch of points, creating the collection on first use.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	if err := s.EnsureCollection(ctx, collection, uint64(len(points[0].Vector))); err != nil {
		return err
	}

	batch := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for key, value := range p.Payload {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert payload value for key %s: %w", key, err)
			}
			payload[key] = val
		}
		batch[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	return s.withRetry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         batch,
		})
		return err
	})
}

// Search runs a filtered similarity search. A missing collection yields an
// empty result, not an error: the projection may simply not exist yet.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, topK int, filter map[string]string) ([]Hit, error) {
	request := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(filter))
		for key, value := range filter {
			conditions = append(conditions, qdrant.NewMatch(key, value))
		}
		request.Filter = &qdrant.Filter{Must: conditions}
	}

	var result []*qdrant.ScoredPoint
	err := s.withRetry(ctx, "search", func() error {
		points, err := s.client.GetPointsClient().Search(ctx, request)
		if err != nil {
			return err
		}
		result = points.Result
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	hits := make([]Hit, 0, len(result))
	for _, point := range result {
		hits = append(hits, Hit{
			ID:      pointID(point.Id),
			Score:   point.Score,
			Payload: decodePayload(point.Payload),
		})
	}
	return hits, nil
}

// DeleteProject drops both per-project collections. Missing collections are
// fine.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	for _, collection := range []string{FragmentCollection(projectID), ClaimCollection(projectID)} {
		if err := s.client.DeleteCollection(ctx, collection); err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete collection %s: %w", collection, err)
		}
	}
	return nil
}

func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) || attempt == s.maxRetries {
			return fmt.Errorf("vector %s failed: %w", op, lastErr)
		}

		delay := time.Duration(1<<attempt) * 250 * time.Millisecond
		slog.Warn("transient vector error, retrying",
			"op", op, "attempt", attempt+1, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("vector %s failed: %w", op, lastErr)
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func isNotFound(err error) bool {
	if status.Code(err) == codes.NotFound {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "doesn't exist")
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			out[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			out[key] = v.BoolValue
		default:
			out[key] = value
		}
	}
	return out
}
