package extract

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name  string
	pages []string
	err   error
	panic bool
	calls atomic.Int32
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(context.Context, Document) ([]string, error) {
	f.calls.Add(1)
	if f.panic {
		panic("malformed xref table")
	}
	return f.pages, f.err
}

type fakeRasterizer struct {
	pages int
	err   error
}

func (f fakeRasterizer) Rasterize(_ context.Context, _ Document, _ float64, emit func(int, []byte) error) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	for i := 0; i < f.pages; i++ {
		if err := emit(i, []byte(fmt.Sprintf("image-%d", i))); err != nil {
			return i, err
		}
	}
	return f.pages, nil
}

// fakeRecognizer echoes the image name, failing for listed images.
type fakeRecognizer struct {
	fail map[string]bool
}

func (f fakeRecognizer) Recognize(_ context.Context, image []byte) (string, error) {
	if f.fail[string(image)] {
		return "", errors.New("tesseract: empty page")
	}
	return "text of " + string(image), nil
}

var testDoc = Document{Name: "doc.pdf", Data: []byte("%PDF-1.7")}

func TestExtract_PrimarySucceeds(t *testing.T) {
	primary := &fakeStrategy{name: "primary", pages: []string{"page one", "page two"}}
	secondary := &fakeStrategy{name: "secondary", pages: []string{"unused"}}

	res := NewExtractor([]Strategy{primary, secondary}, nil, nil).Extract(context.Background(), testDoc)

	assert.Equal(t, []string{"page one", "page two"}, res.Pages)
	assert.Equal(t, "primary", res.Method)
	assert.False(t, res.Scanned)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(0), secondary.calls.Load())
}

func TestExtract_CascadesPastFailures(t *testing.T) {
	failing := &fakeStrategy{name: "failing", err: errors.New("bad font")}
	panicking := &fakeStrategy{name: "panicking", panic: true}
	blank := &fakeStrategy{name: "blank", pages: []string{"  ", "\n"}}
	working := &fakeStrategy{name: "working", pages: []string{"", "found it"}}

	res := NewExtractor([]Strategy{failing, panicking, blank, working}, nil, nil).Extract(context.Background(), testDoc)

	assert.Equal(t, []string{"", "found it"}, res.Pages)
	assert.Equal(t, "working", res.Method)
	require.Len(t, res.Failures, 3)
	assert.Equal(t, "failing", res.Failures[0].Method)
	assert.Equal(t, "panicking", res.Failures[1].Method)
	assert.Contains(t, res.Failures[1].Error(), "panic")
	assert.ErrorIs(t, &res.Failures[2], ErrEmptyOutput)
}

func TestExtract_AllFailReturnsEmptyPage(t *testing.T) {
	strategies := []Strategy{
		&fakeStrategy{name: "a", err: errors.New("a")},
		&fakeStrategy{name: "b", pages: nil},
	}

	res := NewExtractor(strategies, nil, nil).Extract(context.Background(), testDoc)

	assert.Equal(t, []string{""}, res.Pages)
	assert.Empty(t, res.Method)
	assert.ErrorIs(t, res.Err, ErrNoText)
	assert.Len(t, res.Failures, 2)
}

func TestExtract_NoStrategies(t *testing.T) {
	res := NewExtractor(nil, nil, nil).Extract(context.Background(), testDoc)
	assert.Equal(t, []string{""}, res.Pages)
	assert.ErrorIs(t, res.Err, ErrNoText)
}

func TestExtract_ScannedDocumentUsesOCR(t *testing.T) {
	primary := &fakeStrategy{name: "primary", pages: []string{"   ", ""}}
	fallback := &fakeStrategy{name: "fallback", pages: []string{"should not run"}}
	ocr := NewOCR(fakeRasterizer{pages: 3}, fakeRecognizer{}, 0, 2, nil)

	res := NewExtractor([]Strategy{primary, fallback}, ocr, nil).Extract(context.Background(), testDoc)

	assert.True(t, res.Scanned)
	assert.Equal(t, MethodOCR, res.Method)
	assert.Equal(t, []string{"text of image-0", "text of image-1", "text of image-2"}, res.Pages)
	assert.Equal(t, int32(0), fallback.calls.Load())
}

func TestExtract_ScanDetectionErrorMeansNotScanned(t *testing.T) {
	primary := &fakeStrategy{name: "primary", err: errors.New("encrypted")}
	fallback := &fakeStrategy{name: "fallback", pages: []string{"text layer"}}
	ocr := NewOCR(fakeRasterizer{pages: 1}, fakeRecognizer{}, 0, 1, nil)

	res := NewExtractor([]Strategy{primary, fallback}, ocr, nil).Extract(context.Background(), testDoc)

	assert.False(t, res.Scanned)
	assert.Equal(t, "fallback", res.Method)
}

func TestExtract_OCRFailureFallsBackToCascade(t *testing.T) {
	primary := &fakeStrategy{name: "primary", pages: []string{"", "second page has text"}}
	ocr := NewOCR(fakeRasterizer{err: errors.New("render failed")}, fakeRecognizer{}, 0, 1, nil)

	res := NewExtractor([]Strategy{primary}, ocr, nil).Extract(context.Background(), testDoc)

	assert.True(t, res.Scanned)
	assert.Equal(t, "primary", res.Method)
	assert.Equal(t, []string{"", "second page has text"}, res.Pages)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, MethodOCR, res.Failures[0].Method)
	assert.ErrorIs(t, res.Failures[0].Err, ErrOCRFailed)
}

func TestOCR_FailedPageBecomesEmpty(t *testing.T) {
	ocr := NewOCR(fakeRasterizer{pages: 4}, fakeRecognizer{fail: map[string]bool{"image-2": true}}, 150, 3, nil)

	pages, err := ocr.Extract(context.Background(), testDoc)
	require.NoError(t, err)
	assert.Equal(t, []string{"text of image-0", "text of image-1", "", "text of image-3"}, pages)
}

func TestOCR_AllPagesFail(t *testing.T) {
	ocr := NewOCR(fakeRasterizer{pages: 2}, fakeRecognizer{fail: map[string]bool{"image-0": true, "image-1": true}}, 0, 0, nil)

	_, err := ocr.Extract(context.Background(), testDoc)
	assert.ErrorIs(t, err, ErrOCRFailed)
}

func TestOCR_PreservesOrderUnderConcurrency(t *testing.T) {
	ocr := NewOCR(fakeRasterizer{pages: 40}, fakeRecognizer{}, 0, 8, nil)

	pages, err := ocr.Extract(context.Background(), testDoc)
	require.NoError(t, err)
	require.Len(t, pages, 40)
	for i, p := range pages {
		assert.Equal(t, fmt.Sprintf("text of image-%d", i), p)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want Format
	}{
		{"pdf extension", Document{Name: "Report.PDF"}, FormatPDF},
		{"markdown", Document{Name: "README.md"}, FormatMarkdown},
		{"text", Document{Name: "notes.txt"}, FormatText},
		{"sniffed pdf", Document{Name: "upload", Data: []byte("%PDF-1.4\n...")}, FormatPDF},
		{"unknown", Document{Name: "upload.bin", Data: []byte("hello")}, FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.doc))
		})
	}
}

func TestRouter_DispatchesByFormat(t *testing.T) {
	pdfStrategy := &fakeStrategy{name: "pdf", pages: []string{"pdf text"}}
	textStrategy := &fakeStrategy{name: "text", pages: []string{"plain text"}}
	router := NewRouterWith(map[Format]*Extractor{
		FormatPDF:  NewExtractor([]Strategy{pdfStrategy}, nil, nil),
		FormatText: NewExtractor([]Strategy{textStrategy}, nil, nil),
	}, nil)

	assert.Equal(t, "pdf", router.Extract(context.Background(), Document{Name: "a.pdf"}).Method)
	assert.Equal(t, "text", router.Extract(context.Background(), Document{Name: "a.txt"}).Method)
	// No markdown cascade configured: falls back to text.
	assert.Equal(t, "text", router.Extract(context.Background(), Document{Name: "a.md"}).Method)
}

func TestJoinPages(t *testing.T) {
	assert.Equal(t, "a\n\nb\n\n", JoinPages([]string{"a", "b", ""}))
}
