//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/index"
)

// setupTestIndex connects to a local Qdrant. Skips test if Qdrant is not running.
func setupTestIndex(t *testing.T) *QdrantIndex {
	qd, err := NewQdrantIndex("localhost", 6334)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() { qd.Close() })
	return qd
}

func TestQdrantIndex_MatchesLocalIndex(t *testing.T) {
	qd := setupTestIndex(t)
	ctx := context.Background()

	vectors := [][]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 2, 0},
		{3, 3, 3},
	}
	snapshotID := uuid.New().String()

	collection, err := qd.Upload(ctx, snapshotID, 3, vectors)
	require.NoError(t, err)
	assert.Equal(t, RemoteCollectionName(snapshotID), collection)
	t.Cleanup(func() { qd.Drop(context.Background(), collection) })

	query := []float32{0.9, 0.1, 0}
	remote, err := qd.Search(ctx, collection, query, 3)
	require.NoError(t, err)

	local, err := index.Build(3, vectors)
	require.NoError(t, err)
	want, err := local.Search(query, 3)
	require.NoError(t, err)

	require.Len(t, remote, len(want))
	for i := range want {
		assert.Equal(t, want[i].Row, remote[i].Row, "rank %d", i)
		assert.InDelta(t, want[i].Distance, remote[i].Distance, 1e-4, "rank %d", i)
	}
}

func TestQdrantIndex_UploadReplacesCollection(t *testing.T) {
	qd := setupTestIndex(t)
	ctx := context.Background()
	snapshotID := uuid.New().String()

	_, err := qd.Upload(ctx, snapshotID, 2, [][]float32{{0, 0}, {1, 1}, {2, 2}})
	require.NoError(t, err)
	collection, err := qd.Upload(ctx, snapshotID, 2, [][]float32{{5, 5}})
	require.NoError(t, err)
	t.Cleanup(func() { qd.Drop(context.Background(), collection) })

	hits, err := qd.Search(ctx, collection, []float32{0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Row)
}

func TestQdrantIndex_FailedUploadLeavesNoCollection(t *testing.T) {
	qd := setupTestIndex(t)
	ctx := context.Background()
	snapshotID := uuid.New().String()

	vectors := make([][]float32, upsertBatchSize+1)
	for i := range vectors {
		vectors[i] = []float32{float32(i), 1}
	}
	batches := 0
	qd.upsert = func(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
		batches++
		if batches == 2 {
			return errors.New("connection reset")
		}
		return qd.upsertWithRetry(ctx, collection, points)
	}

	_, err := qd.Upload(ctx, snapshotID, 2, vectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 2, batches)

	exists, err := qd.client.CollectionExists(ctx, RemoteCollectionName(snapshotID))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQdrantIndex_DimensionMismatch(t *testing.T) {
	qd := setupTestIndex(t)

	_, err := qd.Upload(context.Background(), uuid.New().String(), 3, [][]float32{{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantIndex_DropMissingCollection(t *testing.T) {
	qd := setupTestIndex(t)
	assert.NoError(t, qd.Drop(context.Background(), RemoteCollectionName(uuid.New().String())))
}
