package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/bull/docqa-server/internal/fsutil"
)

// ChunkStore persists the ordered chunk list referenced by index rows.
type ChunkStore struct {
	path string
}

// NewChunkStore returns a store backed by the JSON file at path.
func NewChunkStore(path string) *ChunkStore {
	return &ChunkStore{path: path}
}

// Path returns the backing file.
func (s *ChunkStore) Path() string { return s.path }

// Save writes chunks in order, replacing any previous content atomically.
// Text must be valid UTF-8 so Load returns it byte for byte.
func (s *ChunkStore) Save(chunks []Chunk) error {
	if chunks == nil {
		chunks = []Chunk{} // Persist "[]", never "null"
	}
	if err := checkOrdinals(chunks); err != nil {
		return err
	}
	for _, c := range chunks {
		if !utf8.ValidString(c.Text) {
			return fmt.Errorf("chunk %d: %w", c.Ordinal, ErrInvalidText)
		}
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}

// Load reads the chunk list. A missing store is ErrNotFound, never an empty list.
func (s *ChunkStore) Load() ([]Chunk, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("chunk store %s: %w", s.path, ErrNotFound)
		}
		return nil, fmt.Errorf("read chunks: %w", err)
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("%w: parse chunks: %v", ErrSnapshotMismatch, err)
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	if err := checkOrdinals(chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}
