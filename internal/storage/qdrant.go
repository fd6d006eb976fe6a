package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/docqa-server/internal/index"
)

// upsertBatchSize bounds the number of points per upsert request.
const upsertBatchSize = 100

// QdrantIndex mirrors snapshot vectors into Qdrant. Each snapshot gets its own
// collection whose point IDs are chunk ordinals, so a collection can be
// published and dropped together with the local snapshot it belongs to.
type QdrantIndex struct {
	client *qdrant.Client
	host   string
	port   int

	// upsert stores one batch; nil means upsertWithRetry.
	upsert func(ctx context.Context, collection string, points []*qdrant.PointStruct) error
}

// NewQdrantIndex creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantIndex(host string, port int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantIndex{
		client: client,
		host:   host,
		port:   port,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return s, nil
}

// RemoteCollectionName derives the Qdrant collection name for a snapshot.
func RemoteCollectionName(snapshotID string) string {
	return "chunks_" + strings.ReplaceAll(snapshotID, "-", "")
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Upload creates the snapshot's collection and stores vectors with point ID
// equal to the row. An existing collection of the same name is replaced.
// It returns the collection name to record in the manifest.
func (s *QdrantIndex) Upload(ctx context.Context, snapshotID string, dim int, vectors [][]float32) (string, error) {
	for i, v := range vectors {
		if len(v) != dim {
			return "", fmt.Errorf("%w: row %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}

	name := RemoteCollectionName(snapshotID)
	if err := s.Drop(ctx, name); err != nil {
		return "", err
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	upsert := s.upsert
	if upsert == nil {
		upsert = s.upsertWithRetry
	}
	for i := 0; i < len(vectors); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(vectors))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for row := i; row < end; row++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(row)),
				Vectors: qdrant.NewVectors(vectors[row]...),
				Payload: qdrant.NewValueMap(map[string]any{
					"ordinal":     row,
					"snapshot_id": snapshotID,
				}),
			})
		}

		if err := upsert(ctx, name, points); err != nil {
			// A partial collection must never be left behind for a manifest to point at.
			if dropErr := s.Drop(context.WithoutCancel(ctx), name); dropErr != nil {
				err = errors.Join(err, dropErr)
			}
			return "", fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	return name, nil
}

// upsertWithRetry performs upsert operation with exponential backoff retry.
func (s *QdrantIndex) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Search returns the k nearest rows in collection. Qdrant reports Euclidean
// distance; it is squared here to match the local index.
func (s *QdrantIndex) Search(ctx context.Context, collection string, query []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return []index.Hit{}, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, result := range results {
		d := float64(result.Score)
		hits = append(hits, index.Hit{
			Row:      int(result.Id.GetNum()),
			Distance: d * d,
		})
	}
	return hits, nil
}

// Drop deletes a snapshot collection if it exists.
func (s *QdrantIndex) Drop(ctx context.Context, collection string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", collection, err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
