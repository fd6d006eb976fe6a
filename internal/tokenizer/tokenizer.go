// Package tokenizer provides the sub-word tokenizer shared by chunking and embedding.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// BPE ranks are embedded in the binary; nothing is fetched at runtime.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncoding is used when the embedding model has no registered encoding.
const DefaultEncoding = "cl100k_base"

// Tokenizer converts text to token IDs and back.
// Implementations must be safe for concurrent use after construction.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Name() string
}

// Tiktoken wraps a BPE encoding from tiktoken-go.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// ForModel returns the tokenizer the given embedding model consumes, so chunk
// boundaries are measured in the model's own units.
func ForModel(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &Tiktoken{encoding: enc, name: model}, nil
	}
	return NewTiktoken(DefaultEncoding)
}

// NewTiktoken loads a named encoding such as "cl100k_base".
func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{encoding: enc, name: encoding}, nil
}

// Encode tokenizes text. Special-token markers in the text are treated as plain text.
func (t *Tiktoken) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode turns a token slice back into text.
func (t *Tiktoken) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// Name identifies the encoding; it is recorded in snapshot manifests.
func (t *Tiktoken) Name() string {
	return t.name
}
