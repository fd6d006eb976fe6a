package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/retrieval"
	"github.com/bull/docqa-server/internal/storage"
)

// Asker answers questions about the ingested document.
type Asker interface {
	Ask(ctx context.Context, question string) (*answer.Answer, error)
}

// Retriever returns ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]retrieval.SearchResult, error)
}

// Ingester ingests an uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, doc extract.Document) (*indexer.IngestResult, error)
}

// ManifestSource reports the published snapshot.
type ManifestSource interface {
	CurrentManifest() (*storage.Manifest, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	cfg    Config
}

// Config holds server dependencies.
type Config struct {
	Asker     Asker
	Retriever Retriever
	Ingester  Ingester
	Snapshots ManifestSource
	// Remote is checked by the health endpoint when set.
	Remote HealthChecker
	// MaxUploadBytes bounds uploaded documents; zero selects DefaultMaxUploadBytes.
	MaxUploadBytes int64
	// Stateless disables MCP session management on /mcp.
	Stateless bool
	Logger    *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	impl := &mcp.Implementation{
		Name:    "docqa-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the most recently ingested document. Falls back to the retrieved passages when no language model is configured.",
	}, makeAskHandler(cfg.Asker))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_document",
		Description: "Semantic search over the ingested document. Returns ranked chunks with squared L2 distance (smaller is closer).",
	}, makeSearchHandler(cfg.Retriever))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report whether a document is ingested and describe the published index snapshot.",
	}, makeStatusHandler(cfg.Snapshots))

	return &Server{
		server: server,
		cfg:    cfg,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
