// Package mcp exposes document question answering over MCP and plain HTTP.
package mcp

import "github.com/bull/docqa-server/internal/retrieval"

// AskDocumentInput defines the input parameters for the ask_document tool.
type AskDocumentInput struct {
	// Question is answered from the ingested document only.
	Question string `json:"question" jsonschema:"the question to answer from the ingested document"`
}

// AskDocumentOutput contains the answer.
type AskDocumentOutput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Fallback is set when no model answered and Answer holds the retrieved context.
	Fallback bool `json:"fallback"`
	// Message explains an empty answer (e.g., nothing ingested yet).
	Message string `json:"message,omitempty"`
}

// SearchDocumentInput defines the input parameters for the search_document tool.
type SearchDocumentInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"the semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of chunks to return (1-20, default 3)"`
}

// SearchDocumentOutput contains ranked chunks, nearest first.
type SearchDocumentOutput struct {
	Results []retrieval.SearchResult `json:"results"`
	Message string                   `json:"message,omitempty"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput describes the published snapshot.
type IndexStatusOutput struct {
	Ready            bool   `json:"ready"`
	SnapshotID       string `json:"snapshot_id,omitempty"`
	Source           string `json:"source,omitempty"`
	IndexedAt        string `json:"indexed_at,omitempty"`
	PageCount        int    `json:"page_count"`
	ChunkCount       int    `json:"chunk_count"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	EmbeddingModel   string `json:"embedding_model,omitempty"`
	Dimension        int    `json:"dimension"`
	RemoteCollection string `json:"remote_collection,omitempty"`
	Message          string `json:"message,omitempty"`
}
