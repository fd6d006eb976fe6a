package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa-server/internal/retrieval"
	"github.com/bull/docqa-server/internal/storage"
)

const (
	defaultMaxResults = retrieval.DefaultTopK
	maxMaxResults     = 20

	notReadyMessage = "No document has been ingested yet. Upload one with POST /upload-pdf or the ingest command."
)

// makeAskHandler creates the ask_document tool handler.
// A missing index is reported in the output rather than as a tool error.
func makeAskHandler(asker Asker) func(
	context.Context, *mcp.CallToolRequest, AskDocumentInput,
) (*mcp.CallToolResult, AskDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskDocumentInput) (
		*mcp.CallToolResult, AskDocumentOutput, error,
	) {
		ans, err := asker.Ask(ctx, input.Question)
		if err != nil {
			if errors.Is(err, retrieval.ErrNotReady) {
				return nil, AskDocumentOutput{Question: input.Question, Message: notReadyMessage}, nil
			}
			return nil, AskDocumentOutput{}, fmt.Errorf("failed to answer: %w", err)
		}

		return nil, AskDocumentOutput{
			Question: ans.Question,
			Answer:   ans.Answer,
			Fallback: ans.Fallback,
		}, nil
	}
}

// makeSearchHandler creates the search_document tool handler.
// Results are nearest first; text is truncated to the display limit.
func makeSearchHandler(retriever Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentInput,
) (*mcp.CallToolResult, SearchDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentInput) (
		*mcp.CallToolResult, SearchDocumentOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		if maxResults > maxMaxResults {
			maxResults = maxMaxResults
		}

		results, err := retriever.Retrieve(ctx, input.Query, maxResults)
		if err != nil {
			if errors.Is(err, retrieval.ErrNotReady) {
				return nil, SearchDocumentOutput{
					Results: []retrieval.SearchResult{},
					Message: notReadyMessage,
				}, nil
			}
			return nil, SearchDocumentOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			return nil, SearchDocumentOutput{
				Results: []retrieval.SearchResult{},
				Message: "The ingested document has no extractable text.",
			}, nil
		}

		return nil, SearchDocumentOutput{Results: results}, nil
	}
}

// makeStatusHandler creates the index_status tool handler.
func makeStatusHandler(snapshots ManifestSource) func(
	context.Context, *mcp.CallToolRequest, IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
		*mcp.CallToolResult, IndexStatusOutput, error,
	) {
		return nil, indexStatus(snapshots), nil
	}
}

// indexStatus is shared by the status tool and the health endpoint.
func indexStatus(snapshots ManifestSource) IndexStatusOutput {
	m, err := snapshots.CurrentManifest()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return IndexStatusOutput{Message: notReadyMessage}
	case err != nil:
		return IndexStatusOutput{Message: fmt.Sprintf("Published index is unusable: %v", err)}
	}

	return IndexStatusOutput{
		Ready:            true,
		SnapshotID:       m.ID,
		Source:           m.Source,
		IndexedAt:        m.CreatedAt.Format(time.RFC3339),
		PageCount:        m.PageCount,
		ChunkCount:       m.ChunkCount,
		ExtractionMethod: m.ExtractionMethod,
		EmbeddingModel:   m.EmbeddingModel,
		Dimension:        m.Dimension,
		RemoteCollection: m.RemoteCollection,
	}
}
