// Package answer generates grounded answers from retrieved context.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/docqa-server/internal/embedding"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4.1-mini"

	// DefaultTemperature keeps answers close to the context.
	DefaultTemperature = 0.2

	systemPrompt = "You are a helpful assistant for question answering over documents."
)

// ErrUnavailable is returned when no generation capability is configured or
// the service cannot be reached.
var ErrUnavailable = errors.New("answer generation unavailable")

// Generator produces an answer to question grounded in context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// OpenAIGenerator answers with the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float64
}

// NewOpenAIGenerator creates a generator with the given OpenAI client.
// An empty model selects DefaultModel; a negative temperature selects DefaultTemperature.
func NewOpenAIGenerator(client *embedding.Client, model string, temperature float64) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	g := &OpenAIGenerator{model: model, temperature: temperature}
	if client != nil {
		g.client = client.Client()
	}
	return g
}

// Model returns the chat model name.
func (g *OpenAIGenerator) Model() string { return g.model }

// Generate asks the model to answer using only the given context.
// Rate-limited calls are retried; other failures wrap ErrUnavailable.
func (g *OpenAIGenerator) Generate(ctx context.Context, question, contextText string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, embedding.ErrMissingAPIKey)
	}

	var answer string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(BuildPrompt(question, contextText)),
			},
			Model:       openai.ChatModel(g.model),
			Temperature: openai.Float(g.temperature),
		})
		if err != nil {
			if embedding.IsRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("%w: chat completion failed: %w", ErrUnavailable, err)
	}
	return strings.TrimSpace(answer), nil
}

// BuildPrompt renders the grounding instructions around context and question.
func BuildPrompt(question, contextText string) string {
	prompt := fmt.Sprintf(`
You are a helpful assistant that answers questions about a document.

Use ONLY the information in the CONTEXT below. If the answer is not in the context,
say "I don't know from this document" and do NOT hallucinate.

CONTEXT:
%s

QUESTION:
%s

Answer in 3-6 sentences, concise and clear.
`, contextText, question)
	return strings.TrimSpace(prompt)
}
