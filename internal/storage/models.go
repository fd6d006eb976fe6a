package storage

import (
	"fmt"
	"time"

	"github.com/bull/docqa-server/internal/index"
)

// Chunk is one stored chunk. Ordinal equals the chunk's row in the paired index.
type Chunk struct {
	Ordinal    int    `json:"ordinal"`
	Text       string `json:"text"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"`
}

// Manifest describes a published snapshot and binds its artifacts together.
type Manifest struct {
	ID               string    `json:"id"`     // UUID, also the snapshot directory name
	Source           string    `json:"source"` // Uploaded or ingested filename
	CreatedAt        time.Time `json:"created_at"`
	PageCount        int       `json:"page_count"`
	ExtractionMethod string    `json:"extraction_method"` // Strategy that produced the pages
	ChunkCount       int       `json:"chunk_count"`
	Dimension        int       `json:"dimension"`
	EmbeddingModel   string    `json:"embedding_model"`
	Tokenizer        string    `json:"tokenizer"`
	MaxTokens        int       `json:"max_tokens"`
	Overlap          int       `json:"overlap"`
	ChunksSHA256     string    `json:"chunks_sha256"`
	IndexSHA256      string    `json:"index_sha256"`
	RemoteCollection string    `json:"remote_collection,omitempty"` // Qdrant mirror, if any
}

// Snapshot is a chunk list and the index built from it, published and read as a unit.
type Snapshot struct {
	Manifest Manifest
	Chunks   []Chunk
	Index    *index.Flat
}

// NewSnapshot pairs chunks with their index. It fails with ErrSnapshotMismatch
// unless chunk i has ordinal i and the index has exactly one row per chunk.
func NewSnapshot(manifest Manifest, chunks []Chunk, idx *index.Flat) (*Snapshot, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: nil index", ErrSnapshotMismatch)
	}
	if err := checkOrdinals(chunks); err != nil {
		return nil, err
	}
	if idx.Len() != len(chunks) {
		return nil, fmt.Errorf("%w: %d chunks but %d index rows", ErrSnapshotMismatch, len(chunks), idx.Len())
	}
	manifest.ChunkCount = len(chunks)
	manifest.Dimension = idx.Dimension()
	return &Snapshot{Manifest: manifest, Chunks: chunks, Index: idx}, nil
}

func checkOrdinals(chunks []Chunk) error {
	for i, c := range chunks {
		if c.Ordinal != i {
			return fmt.Errorf("%w: chunk at position %d has ordinal %d", ErrSnapshotMismatch, i, c.Ordinal)
		}
	}
	return nil
}
