// Package extract turns uploaded documents into ordered page texts.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Document is a named blob of raw bytes as received from an upload or a path.
type Document struct {
	Name string
	Data []byte
}

// Strategy is one way of pulling text out of a document.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc Document) ([]string, error)
}

// Result is the outcome of an extraction.
type Result struct {
	Pages    []string        // Page texts in document order; never empty
	Method   string          // Strategy that produced Pages, "ocr", or "" when nothing did
	Scanned  bool            // First page had no text layer
	Failures []MethodFailure // Strategies that failed along the way, in order tried
	Err      error           // ErrNoText when Pages is the single empty placeholder
}

// Extractor runs a fixed cascade of strategies. The first strategy is also
// the scan detector: when its first page is blank and OCR is configured, the
// document is recognized page by page instead.
type Extractor struct {
	strategies []Strategy
	ocr        *OCR
	logger     *slog.Logger
}

// NewExtractor creates an extractor. Strategies are tried in the order given,
// most structure-aware first. ocr may be nil to disable scan handling.
func NewExtractor(strategies []Strategy, ocr *OCR, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		strategies: strategies,
		ocr:        ocr,
		logger:     logger,
	}
}

// Methods lists the cascade order.
func (e *Extractor) Methods() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract never fails. When every method fails the result holds a single
// empty page and Err is ErrNoText, so downstream stages produce zero chunks.
func (e *Extractor) Extract(ctx context.Context, doc Document) Result {
	var res Result

	start := 0
	if len(e.strategies) > 0 {
		primary := e.strategies[0]
		pages, err := runStrategy(ctx, primary, doc)

		if err == nil && e.ocr != nil && len(pages) > 0 && isBlank(pages[0]) {
			res.Scanned = true
			e.logger.Info("Scanned document detected, using OCR", "document", doc.Name)

			ocrPages, ocrErr := e.ocr.Extract(ctx, doc)
			if ocrErr == nil {
				res.Pages = ocrPages
				res.Method = MethodOCR
				return res
			}
			res.Failures = append(res.Failures, MethodFailure{Method: MethodOCR, Err: ocrErr})
			e.logger.Warn("OCR failed, falling back to text strategies", "document", doc.Name, "error", ocrErr)
		}

		if err == nil && !hasText(pages) {
			err = ErrEmptyOutput
		}
		if err == nil {
			res.Pages = pages
			res.Method = primary.Name()
			return res
		}
		e.recordFailure(&res, doc, primary.Name(), err)
		start = 1
	}

	for _, s := range e.strategies[start:] {
		if ctx.Err() != nil {
			e.recordFailure(&res, doc, s.Name(), ctx.Err())
			break
		}
		pages, err := runStrategy(ctx, s, doc)
		if err == nil && !hasText(pages) {
			err = ErrEmptyOutput
		}
		if err != nil {
			e.recordFailure(&res, doc, s.Name(), err)
			continue
		}
		res.Pages = pages
		res.Method = s.Name()
		return res
	}

	e.logger.Warn("No extractable text", "document", doc.Name, "methods_tried", len(res.Failures))
	res.Pages = []string{""}
	res.Err = ErrNoText
	return res
}

func (e *Extractor) recordFailure(res *Result, doc Document, method string, err error) {
	res.Failures = append(res.Failures, MethodFailure{Method: method, Err: err})
	e.logger.Warn("Extraction method failed", "document", doc.Name, "method", method, "error", err)
}

// runStrategy isolates a strategy. Parser libraries may panic on malformed
// input; a panic is reported as an error like any other failure.
func runStrategy(ctx context.Context, s Strategy, doc Document) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Extract(ctx, doc)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if !isBlank(p) {
			return true
		}
	}
	return false
}

// JoinPages concatenates page texts the way the chunker expects them.
func JoinPages(pages []string) string {
	return strings.Join(pages, "\n\n")
}
