package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension of text-embedding-3-small.
	DefaultDimension = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

// ErrDimensionMismatch is returned when the model produces vectors of an unexpected size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder maps text to fixed-dimension vectors. Implementations are
// constructed once and shared read-only across concurrent requests.
type Embedder interface {
	// EmbedBatch embeds texts in order. An empty batch returns an empty result.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension is the length of every vector produced.
	Dimension() int
	// Model identifies the model; it is recorded in snapshot manifests.
	Model() string
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
// It batches requests for efficiency and implements exponential backoff on rate limit errors.
type OpenAIEmbedder struct {
	client    *Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAIEmbedder creates an embedder. Zero values select DefaultModel,
// DefaultDimension and DefaultBatchSize.
func NewOpenAIEmbedder(client *Client, model string, dimension, batchSize int) *OpenAIEmbedder {
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}
}

// Dimension returns the configured vector size.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// EmbedBatch generates embeddings for the given texts, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("batch %d-%d: got %d embeddings for %d texts", i, end, len(embeddings), len(batch))
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// EmbedQuery generates the embedding for a single question.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *OpenAIEmbedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if IsRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		embeddings = make([][]float32, len(resp.Data))
		for _, data := range resp.Data {
			if int(data.Index) < 0 || int(data.Index) >= len(embeddings) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
			}
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("%w: got %d, expected %d",
					ErrDimensionMismatch, len(data.Embedding), e.dimension))
			}
			embeddings[data.Index] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// IsRateLimitError checks if the error is a rate limit error (HTTP 429).
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but the index stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
