package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// MarkdownSections treats every H1 and H2 section of a markdown document as
// a page. Nested sections are prefixed with their header path so the H1
// context survives chunking.
type MarkdownSections struct {
	md goldmark.Markdown
}

// NewMarkdownSections creates a markdown strategy configured with goldmark parser.
func NewMarkdownSections() *MarkdownSections {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &MarkdownSections{md: md}
}

func (m *MarkdownSections) Name() string { return "markdown-sections" }

type section struct {
	path  []string
	start int
}

func (m *MarkdownSections) Extract(_ context.Context, doc Document) ([]string, error) {
	source := doc.Data
	root := m.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(root, source,
		toc.MinDepth(1),   // Include H1
		toc.MaxDepth(2),   // Split at H1 and H2 only
		toc.Compact(true), // Remove empty items
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	var sections []section
	collectSections(root, source, tree.Items, nil, &sections)

	// No headers: the whole document is one page.
	if len(sections) == 0 {
		return []string{string(source)}, nil
	}

	var pages []string
	if preamble := strings.TrimSpace(string(source[:sections[0].start])); preamble != "" {
		pages = append(pages, preamble)
	}
	for i, s := range sections {
		end := len(source)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		body := strings.TrimSpace(string(source[s.start:end]))
		if len(s.path) > 1 {
			body = formatHeaderPath(s.path) + "\n\n" + body
		}
		pages = append(pages, body)
	}
	return pages, nil
}

// collectSections flattens TOC items in document order and records where each
// heading line begins.
func collectSections(root ast.Node, source []byte, items toc.Items, ancestors []string, out *[]section) {
	for _, item := range items {
		path := append(append([]string(nil), ancestors...), string(item.Title))

		if node := findHeaderByID(root, string(item.ID)); node != nil && node.Lines().Len() > 0 {
			start := lineStart(source, node.Lines().At(0).Start)
			// Document order is guaranteed by the TOC; skip anything that would step backwards.
			if n := len(*out); n == 0 || (*out)[n-1].start < start {
				*out = append(*out, section{path: path, start: start})
			}
		}

		if len(item.Items) > 0 {
			collectSections(root, source, item.Items, path, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok {
				if b, isBytes := headingID.([]byte); isBytes && string(b) == id {
					found = n
					return ast.WalkStop, nil
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(source []byte, pos int) int {
	if pos > len(source) {
		pos = len(source)
	}
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

// PlainText splits a text file into pages on form feeds.
type PlainText struct{}

func (PlainText) Name() string { return "plain-text" }

func (PlainText) Extract(_ context.Context, doc Document) ([]string, error) {
	return strings.Split(string(doc.Data), "\f"), nil
}
