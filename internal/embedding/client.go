package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultLocalBaseURL is the keyless OpenAI-compatible endpoint used when no
// API key is configured (a local Ollama server).
const DefaultLocalBaseURL = "http://localhost:11434/v1/"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

// Client wraps the OpenAI client shared by embedding and answer generation.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. baseURL may be empty to use the SDK default,
// or point at any OpenAI-compatible endpoint (e.g. a local Ollama server).
// The key may only be omitted together with a custom baseURL.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" && baseURL == "" {
		return nil, ErrMissingAPIKey
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., answer generation).
func (c *Client) Client() *openai.Client {
	return c.client
}
