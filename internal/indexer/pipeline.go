package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/index"
	"github.com/bull/docqa-server/internal/storage"
)

// Extractor turns a document into page texts. It does not fail; a document
// without text comes back as a single empty page.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document) extract.Result
}

// RemoteIndex mirrors snapshot vectors to an external vector store.
type RemoteIndex interface {
	Upload(ctx context.Context, snapshotID string, dim int, vectors [][]float32) (string, error)
	Drop(ctx context.Context, collection string) error
}

// Prepared is an extracted and chunked document that has not been embedded yet.
type Prepared struct {
	Document   extract.Document
	Extraction extract.Result
	Chunks     []chunker.Chunk
}

// IngestResult contains statistics about an ingestion.
type IngestResult struct {
	SnapshotID       string
	Source           string
	Pages            int
	Method           string
	Scanned          bool
	ChunkCount       int
	RemoteCollection string
	Duration         time.Duration
}

// Pipeline orchestrates ingestion from raw bytes to a published snapshot.
type Pipeline struct {
	extractor  Extractor
	chunker    *chunker.Chunker
	embedder   embedding.Embedder
	collection *storage.Collection
	remote     RemoteIndex
	retain     int
	logger     *slog.Logger
}

// NewPipeline creates a new ingestion pipeline with the given components.
// remote may be nil.
func NewPipeline(
	extractor Extractor,
	chunker *chunker.Chunker,
	embedder embedding.Embedder,
	collection *storage.Collection,
	remote RemoteIndex,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		collection: collection,
		remote:     remote,
		retain:     storage.DefaultRetain,
		logger:     logger,
	}
}

// Ingest extracts, chunks, embeds and publishes a document, superseding the
// previous snapshot. A document without text publishes an empty snapshot and
// reports zero chunks rather than failing.
func (p *Pipeline) Ingest(ctx context.Context, doc extract.Document) (*IngestResult, error) {
	prepared, err := p.Prepare(ctx, doc)
	if err != nil {
		return nil, err
	}
	return p.Commit(ctx, prepared)
}

// Prepare runs extraction and chunking only.
func (p *Pipeline) Prepare(ctx context.Context, doc extract.Document) (*Prepared, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := p.extractor.Extract(ctx, doc)
	chunks := p.chunker.Chunk(extract.JoinPages(res.Pages))

	p.logger.Debug("Chunked document", "document", doc.Name, "pages", len(res.Pages), "chunks", len(chunks))
	return &Prepared{Document: doc, Extraction: res, Chunks: chunks}, nil
}

// Commit embeds prepared chunks, builds the index and publishes the pair.
// Nothing becomes visible to readers unless every step succeeds.
func (p *Pipeline) Commit(ctx context.Context, prepared *Prepared) (*IngestResult, error) {
	start := time.Now()
	doc := prepared.Document
	snapshotID := uuid.New().String()

	texts := make([]string, len(prepared.Chunks))
	for i, c := range prepared.Chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embeddings: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embeddings: got %d vectors for %d chunks", len(vectors), len(texts))
		}
	}

	idx, err := index.Build(p.embedder.Dimension(), vectors)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	storageChunks := make([]storage.Chunk, len(prepared.Chunks))
	for i, c := range prepared.Chunks {
		storageChunks[i] = storage.Chunk{
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			TokenStart: c.Start,
			TokenEnd:   c.End,
		}
	}

	manifest := storage.Manifest{
		ID:               snapshotID,
		Source:           doc.Name,
		PageCount:        len(prepared.Extraction.Pages),
		ExtractionMethod: prepared.Extraction.Method,
		EmbeddingModel:   p.embedder.Model(),
		Tokenizer:        p.chunker.Tokenizer().Name(),
		MaxTokens:        p.chunker.MaxTokens(),
		Overlap:          p.chunker.Overlap(),
	}

	if p.remote != nil && len(vectors) > 0 {
		collection, err := p.remote.Upload(ctx, snapshotID, idx.Dimension(), vectors)
		if err != nil {
			p.logger.Warn("Remote index upload failed, serving from local index", "snapshot", snapshotID, "error", err)
		} else {
			manifest.RemoteCollection = collection
		}
	}

	snap, err := storage.NewSnapshot(manifest, storageChunks, idx)
	if err != nil {
		p.dropRemote(ctx, manifest.RemoteCollection)
		return nil, err
	}
	if err := p.collection.Publish(snap); err != nil {
		p.dropRemote(ctx, manifest.RemoteCollection)
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}

	p.prune(ctx)

	result := &IngestResult{
		SnapshotID:       snapshotID,
		Source:           doc.Name,
		Pages:            len(prepared.Extraction.Pages),
		Method:           prepared.Extraction.Method,
		Scanned:          prepared.Extraction.Scanned,
		ChunkCount:       len(storageChunks),
		RemoteCollection: manifest.RemoteCollection,
		Duration:         time.Since(start),
	}
	p.logger.Info("Indexed document",
		"document", doc.Name,
		"snapshot", snapshotID,
		"method", result.Method,
		"pages", result.Pages,
		"chunks", result.ChunkCount,
		"duration", result.Duration,
	)
	return result, nil
}

// prune removes superseded snapshots. Failures only leave extra files behind.
func (p *Pipeline) prune(ctx context.Context) {
	removed, err := p.collection.Prune(p.retain)
	if err != nil {
		p.logger.Warn("Failed to prune snapshots", "error", err)
	}
	for _, m := range removed {
		p.dropRemote(ctx, m.RemoteCollection)
	}
}

func (p *Pipeline) dropRemote(ctx context.Context, collection string) {
	if p.remote == nil || collection == "" {
		return
	}
	if err := p.remote.Drop(ctx, collection); err != nil {
		p.logger.Warn("Failed to drop remote collection", "collection", collection, "error", err)
	}
}
