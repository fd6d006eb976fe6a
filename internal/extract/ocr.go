package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// MethodOCR names the OCR path in results and logs.
const MethodOCR = "ocr"

const (
	// DefaultDPI is the render resolution for OCR.
	DefaultDPI = 300

	// DefaultOCRWorkers bounds concurrent recognitions.
	DefaultOCRWorkers = 4
)

// Rasterizer renders document pages to images. emit is called once per page
// in page order; a non-nil error from emit stops rendering.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc Document, dpi float64, emit func(page int, image []byte) error) (int, error)
}

// Recognizer turns a page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// OCR renders each page and recognizes it on a bounded worker pool.
// Page order of the output always matches the document.
type OCR struct {
	rasterizer Rasterizer
	recognizer Recognizer
	dpi        float64
	workers    int
	logger     *slog.Logger
}

// NewOCR creates an OCR pipeline. Non-positive dpi and workers select the defaults.
func NewOCR(rasterizer Rasterizer, recognizer Recognizer, dpi float64, workers int, logger *slog.Logger) *OCR {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if workers <= 0 {
		workers = DefaultOCRWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCR{
		rasterizer: rasterizer,
		recognizer: recognizer,
		dpi:        dpi,
		workers:    workers,
		logger:     logger,
	}
}

// Extract returns one text block per page. A page whose recognition fails
// becomes an empty page; if no page succeeds, ErrOCRFailed is returned.
func (o *OCR) Extract(ctx context.Context, doc Document) ([]string, error) {
	pool, err := ants.NewPool(o.workers, ants.WithPanicHandler(func(p interface{}) {
		o.logger.Error("OCR worker panicked", "document", doc.Name, "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create ocr pool: %w", err)
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		texts  = make(map[int]string)
		failed int
	)

	count, err := o.rasterizer.Rasterize(ctx, doc, o.dpi, func(page int, image []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			text, err := o.recognizer.Recognize(ctx, image)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				o.logger.Warn("OCR failed for page", "document", doc.Name, "page", page, "error", err)
				return
			}
			texts[page] = text
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("submit page %d: %w", page, submitErr)
		}
		return nil
	})
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: rasterize: %v", ErrOCRFailed, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrOCRFailed)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: all %d pages failed", ErrOCRFailed, count)
	}

	pages := make([]string, count)
	for page, text := range texts {
		if page >= 0 && page < count {
			pages[page] = text
		}
	}

	o.logger.Debug("OCR complete", "document", doc.Name, "pages", count, "failed", failed)
	return pages, nil
}
