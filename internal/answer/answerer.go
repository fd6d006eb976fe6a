package answer

import (
	"context"
	"log/slog"

	"github.com/bull/docqa-server/internal/retrieval"
)

// FallbackPrefix labels answers that are raw context instead of generated text.
const FallbackPrefix = "OpenAI API key not configured or generation unavailable.\n\nHere is the retrieved context instead:\n\n"

// Answer is the response to a question.
type Answer struct {
	Question string                   `json:"question"`
	Answer   string                   `json:"answer"`
	Fallback bool                     `json:"fallback"`
	Context  []retrieval.SearchResult `json:"-"`
}

// Retriever is the part of the retrieval coordinator the Answerer needs.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]retrieval.SearchResult, error)
}

// Answerer retrieves context for a question and asks the generator for an
// answer, degrading to the labeled context when generation is unavailable.
type Answerer struct {
	retriever Retriever
	generator Generator
	topK      int
	logger    *slog.Logger
}

// NewAnswerer creates an answerer. generator may be nil when no credential
// is configured; every answer is then a fallback.
func NewAnswerer(retriever Retriever, generator Generator, topK int, logger *slog.Logger) *Answerer {
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Ask answers question. Retrieval errors (including retrieval.ErrNotReady)
// are returned to the caller; generation errors never are.
func (a *Answerer) Ask(ctx context.Context, question string) (*Answer, error) {
	results, err := a.retriever.Retrieve(ctx, question, a.topK)
	if err != nil {
		return nil, err
	}
	contextText := retrieval.FormatContext(results)

	resp := &Answer{Question: question, Context: results}

	if a.generator == nil {
		a.logger.Warn("Answer generation unavailable, returning context", "reason", "no generator configured")
		resp.Answer = FallbackPrefix + contextText
		resp.Fallback = true
		return resp, nil
	}

	text, err := a.generator.Generate(ctx, question, contextText)
	if err != nil {
		a.logger.Warn("Answer generation unavailable, returning context", "error", err)
		resp.Answer = FallbackPrefix + contextText
		resp.Fallback = true
		return resp, nil
	}

	resp.Answer = text
	return resp, nil
}
