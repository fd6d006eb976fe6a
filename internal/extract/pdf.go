package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func openPDF(data []byte) (*pdf.Reader, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

// PDFRows rebuilds each page from positioned text rows.
type PDFRows struct{}

func (PDFRows) Name() string { return "pdf-rows" }

func (PDFRows) Extract(ctx context.Context, doc Document) ([]string, error) {
	r, err := openPDF(doc.Data)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}

		var sb strings.Builder
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
			}
			sb.WriteByte('\n')
		}
		pages = append(pages, sb.String())
	}
	return pages, nil
}

// PDFPlain dumps the whole document as one text stream. It ignores layout
// and is the last resort, so its output is a single page.
type PDFPlain struct{}

func (PDFPlain) Name() string { return "pdf-plain" }

func (PDFPlain) Extract(ctx context.Context, doc Document) ([]string, error) {
	r, err := openPDF(doc.Data)
	if err != nil {
		return nil, err
	}
	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("plain text: %w", err)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("read plain text: %w", err)
	}
	return []string{string(data)}, nil
}
