package extract

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
)

// Format is a document type with its own extraction cascade.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

var pdfMagic = []byte("%PDF-")

// DetectFormat picks a format from the file extension, sniffing the PDF
// header when the extension is unknown.
func DetectFormat(doc Document) Format {
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".pdf":
		return FormatPDF
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	}
	if bytes.HasPrefix(bytes.TrimLeft(doc.Data, "\x00\t\r\n "), pdfMagic) {
		return FormatPDF
	}
	return FormatText
}

// Options configure the default cascades.
type Options struct {
	OCREnabled bool
	DPI        float64
	Languages  []string
	Workers    int
}

// Router dispatches a document to the cascade for its format.
type Router struct {
	extractors map[Format]*Extractor
	logger     *slog.Logger
}

// NewRouter builds the default cascades:
//
//	pdf:      mupdf -> pdf-rows -> pdf-plain, with OCR for scanned documents
//	markdown: markdown-sections -> plain-text
//	text:     plain-text
func NewRouter(opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	var ocr *OCR
	if opts.OCREnabled {
		ocr = NewOCR(FitzRasterizer{}, TesseractRecognizer{Languages: opts.Languages}, opts.DPI, opts.Workers, logger)
	}

	return NewRouterWith(map[Format]*Extractor{
		FormatPDF:      NewExtractor([]Strategy{FitzText{}, PDFRows{}, PDFPlain{}}, ocr, logger),
		FormatMarkdown: NewExtractor([]Strategy{NewMarkdownSections(), PlainText{}}, nil, logger),
		FormatText:     NewExtractor([]Strategy{PlainText{}}, nil, logger),
	}, logger)
}

// NewRouterWith creates a router over explicit cascades.
func NewRouterWith(extractors map[Format]*Extractor, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	for format, e := range extractors {
		logger.Debug("Extraction cascade", "format", format, "methods", e.Methods(), "ocr", e.ocr != nil)
	}
	return &Router{extractors: extractors, logger: logger}
}

// Extract runs the cascade for the document's format. Formats without a
// configured cascade fall back to the text cascade.
func (r *Router) Extract(ctx context.Context, doc Document) Result {
	format := DetectFormat(doc)
	e, ok := r.extractors[format]
	if !ok {
		e, ok = r.extractors[FormatText]
	}
	if !ok {
		r.logger.Warn("No extractor for document", "document", doc.Name, "format", format)
		return Result{Pages: []string{""}, Err: ErrNoText}
	}

	res := e.Extract(ctx, doc)
	r.logger.Info("Extracted document",
		"document", doc.Name,
		"format", format,
		"method", res.Method,
		"pages", len(res.Pages),
		"scanned", res.Scanned,
	)
	return res
}
