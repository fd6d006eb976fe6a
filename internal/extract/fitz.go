package extract

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// FitzText extracts the text layer of each page with MuPDF, which keeps
// reading order and block layout.
type FitzText struct{}

func (FitzText) Name() string { return "mupdf" }

func (FitzText) Extract(ctx context.Context, doc Document) ([]string, error) {
	d, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer d.Close()

	pages := make([]string, 0, d.NumPage())
	for i := 0; i < d.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := d.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// FitzRasterizer renders pages to PNG with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Rasterize(ctx context.Context, doc Document, dpi float64, emit func(int, []byte) error) (int, error) {
	d, err := fitz.NewFromMemory(doc.Data)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer d.Close()

	n := d.NumPage()
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		img, err := d.ImagePNG(i, dpi)
		if err != nil {
			return i, fmt.Errorf("render page %d: %w", i, err)
		}
		if err := emit(i, img); err != nil {
			return i, err
		}
	}
	return n, nil
}
