// Package retrieval turns a question into ranked, distance-annotated chunks
// of the published snapshot.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/index"
	"github.com/bull/docqa-server/internal/storage"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 3

	// DefaultCharLimit bounds the text of each returned chunk.
	DefaultCharLimit = 800
)

var (
	// ErrNotReady is returned when no usable snapshot is published.
	ErrNotReady = errors.New("document index not ready")

	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// SearchResult is one retrieved chunk. Rank is 1-based.
type SearchResult struct {
	Rank         int     `json:"rank"`
	ChunkOrdinal int     `json:"chunk_ordinal"`
	Distance     float64 `json:"distance"`
	Text         string  `json:"text"`
}

// SnapshotSource provides the published chunk/index pair.
type SnapshotSource interface {
	Current() (*storage.Snapshot, error)
}

// RemoteSearcher searches a mirrored copy of a snapshot's vectors.
type RemoteSearcher interface {
	Search(ctx context.Context, collection string, query []float32, k int) ([]index.Hit, error)
}

// Coordinator joins query embeddings, index hits and chunk texts.
// It only reads published snapshots and is safe for concurrent use.
type Coordinator struct {
	embedder  embedding.Embedder
	snapshots SnapshotSource
	remote    RemoteSearcher
	charLimit int
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRemote searches the snapshot's remote collection when the manifest
// names one. The local index is used if the remote search fails.
func WithRemote(r RemoteSearcher) Option {
	return func(c *Coordinator) { c.remote = r }
}

// WithCharLimit sets the per-chunk text limit of results. Zero or less disables truncation.
func WithCharLimit(n int) Option {
	return func(c *Coordinator) { c.charLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates a coordinator over the given embedder and snapshots.
func NewCoordinator(embedder embedding.Embedder, snapshots SnapshotSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		embedder:  embedder,
		snapshots: snapshots,
		charLimit: DefaultCharLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve returns up to k chunks nearest to the question, ascending by
// distance. It fails with ErrNotReady when nothing has been ingested or the
// published pair is inconsistent; a document with no chunks yields no results.
func (c *Coordinator) Retrieve(ctx context.Context, question string, k int) ([]SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if k <= 0 {
		k = DefaultTopK
	}

	snap, err := c.snapshots.Current()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrSnapshotMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	m := snap.Manifest
	if m.EmbeddingModel != "" && m.EmbeddingModel != c.embedder.Model() {
		return nil, fmt.Errorf("%w: snapshot embedded with %s, query embedder is %s",
			ErrNotReady, m.EmbeddingModel, c.embedder.Model())
	}
	if len(snap.Chunks) == 0 {
		return []SearchResult{}, nil
	}
	if snap.Index.Dimension() != c.embedder.Dimension() {
		return nil, fmt.Errorf("%w: %w: index has %d dimensions, embedder %d",
			ErrNotReady, index.ErrDimensionMismatch, snap.Index.Dimension(), c.embedder.Dimension())
	}

	query, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := c.search(ctx, snap, query, k)
	if err != nil {
		return nil, err
	}

	// Order is re-established here rather than trusted from the index.
	slices.SortStableFunc(hits, func(a, b index.Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	results := make([]SearchResult, 0, len(hits))
	for i, h := range hits {
		if h.Row < 0 || h.Row >= len(snap.Chunks) {
			return nil, fmt.Errorf("%w: %w: row %d outside %d chunks",
				ErrNotReady, storage.ErrSnapshotMismatch, h.Row, len(snap.Chunks))
		}
		chunk := snap.Chunks[h.Row]
		results = append(results, SearchResult{
			Rank:         i + 1,
			ChunkOrdinal: chunk.Ordinal,
			Distance:     h.Distance,
			Text:         Truncate(chunk.Text, c.charLimit),
		})
	}

	c.logger.Debug("Retrieved context", "snapshot", m.ID, "k", k, "results", len(results))
	return results, nil
}

func (c *Coordinator) search(ctx context.Context, snap *storage.Snapshot, query []float32, k int) ([]index.Hit, error) {
	if c.remote != nil && snap.Manifest.RemoteCollection != "" {
		hits, err := c.remote.Search(ctx, snap.Manifest.RemoteCollection, query, k)
		if err == nil {
			return hits, nil
		}
		c.logger.Warn("Remote search failed, using local index",
			"collection", snap.Manifest.RemoteCollection, "error", err)
	}

	hits, err := snap.Index.Search(query, k)
	if err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// Truncate shortens s to at most limit runes. A non-positive limit returns s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// FormatContext renders results as the context block handed to the answer
// generator, one block per chunk separated by a blank line.
func FormatContext(results []SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[CHUNK %d | dist=%.3f]\n%s\n", r.ChunkOrdinal, r.Distance, r.Text)
	}
	return strings.Join(parts, "\n\n")
}
