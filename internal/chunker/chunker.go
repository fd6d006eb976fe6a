// Package chunker splits document text into overlapping token windows.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bull/docqa-server/internal/tokenizer"
)

const (
	// DefaultMaxTokens is the window size used by ingestion.
	DefaultMaxTokens = 300

	// DefaultOverlap is the number of tokens shared by consecutive windows.
	DefaultOverlap = 80
)

// ErrInvalidConfig is returned for window parameters that cannot make progress.
var ErrInvalidConfig = errors.New("invalid chunking configuration")

// Chunk is one token window of the input.
type Chunk struct {
	Ordinal int    // Position in the output sequence (0, 1, 2...)
	Text    string // Decoded window text
	Start   int    // First token index, inclusive
	End     int    // Last token index, exclusive
}

// Chunker splits text into fixed-size token windows with overlap.
type Chunker struct {
	tok       tokenizer.Tokenizer
	maxTokens int
	overlap   int
}

// New creates a Chunker. It fails fast when maxTokens <= 0, overlap < 0 or
// overlap >= maxTokens, since the cursor would never advance.
func New(tok tokenizer.Tokenizer, maxTokens, overlap int) (*Chunker, error) {
	if err := Validate(maxTokens, overlap); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", ErrInvalidConfig)
	}
	return &Chunker{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// Validate checks window parameters.
func Validate(maxTokens, overlap int) error {
	switch {
	case maxTokens <= 0:
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, maxTokens)
	case overlap < 0:
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	case overlap >= maxTokens:
		return fmt.Errorf("%w: overlap %d must be smaller than max tokens %d", ErrInvalidConfig, overlap, maxTokens)
	}
	return nil
}

// MaxTokens returns the window size.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Overlap returns the number of shared tokens between windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Tokenizer returns the tokenizer windows are measured in.
func (c *Chunker) Tokenizer() tokenizer.Tokenizer { return c.tok }

// Chunk splits text into windows of at most maxTokens tokens. Consecutive
// windows share exactly overlap tokens; the last window may be shorter.
// Empty or whitespace-only text yields no chunks.
//
// Byte-level BPE can split one character across tokens, so a window edge may
// fall inside a character. The partial bytes are dropped from Text, which is
// always valid UTF-8.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	tokens := c.tok.Encode(text)
	spans := Spans(len(tokens), c.maxTokens, c.overlap)

	chunks := make([]Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = Chunk{
			Ordinal: i,
			Text:    strings.ToValidUTF8(c.tok.Decode(tokens[span[0]:span[1]]), ""),
			Start:   span[0],
			End:     span[1],
		}
	}
	return chunks
}

// Spans computes the [start, end) token windows for n tokens. The caller must
// have validated maxTokens and overlap. Iteration stops once a window reaches
// the final token, so no window is fully contained in its predecessor.
func Spans(n, maxTokens, overlap int) [][2]int {
	if n <= 0 {
		return nil
	}
	step := maxTokens - overlap
	spans := make([][2]int, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := min(start+maxTokens, n)
		spans = append(spans, [2]int{start, end})
		if end == n {
			break
		}
	}
	return spans
}
