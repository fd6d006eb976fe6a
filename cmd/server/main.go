// Package main provides the document Q&A server: REST upload/ask endpoints,
// a health check and the MCP tools, over HTTP and optionally stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/indexer"
	mcpserver "github.com/bull/docqa-server/internal/mcp"
	"github.com/bull/docqa-server/internal/retrieval"
	"github.com/bull/docqa-server/internal/storage"
	"github.com/bull/docqa-server/internal/tokenizer"
)

func main() {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	app, err := newApp(cfg, slog.Default())
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer app.Close()

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		// HTTP mode: REST API and MCP over HTTP for remote clients
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
		return
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients.
	// The HTTP API is also served in the background for uploads.
	go func() {
		log.Printf("Starting HTTP server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("Starting Document Q&A MCP Server (stdio mode)...")
	if err := app.server.Run(ctx); err != nil {
		log.Printf("server error: %v", err)
		os.Exit(1)
	}
}

// app is the wired server: MCP tools plus the HTTP router in front of them.
type app struct {
	server  *mcpserver.Server
	handler http.Handler
	qdrant  *storage.QdrantIndex
}

// Close releases the Qdrant connection, if any.
func (a *app) Close() {
	if a.qdrant != nil {
		a.qdrant.Close()
	}
}

// newApp wires storage, extraction, embeddings, retrieval and answering.
// A missing OPENAI_API_KEY only disables generation; the server still starts.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	collection, err := storage.OpenCollection(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	tok, err := tokenizer.ForModel(cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	splitter, err := chunker.New(tok, cfg.ChunkMaxTokens, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}

	// Embeddings are required for both ingestion and retrieval.
	embeddingClient, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewOpenAIEmbedder(embeddingClient, cfg.EmbeddingModel, cfg.EmbeddingDimension, cfg.EmbeddingBatchSize)

	// Generation needs the API key; without it every answer is the labeled context.
	var generator answer.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = answer.NewOpenAIGenerator(embeddingClient, cfg.ChatModel, cfg.ChatTemperature)
	} else {
		logger.Warn("OPENAI_API_KEY not set; answers fall back to retrieved context",
			"embedding_endpoint", cfg.OpenAIBaseURL)
	}

	a := &app{}
	var (
		remote        indexer.RemoteIndex
		health        mcpserver.HealthChecker
		retrievalOpts = []retrieval.Option{retrieval.WithCharLimit(cfg.ContextCharLimit), retrieval.WithLogger(logger)}
	)
	if cfg.VectorBackend == config.BackendQdrant {
		qd, err := storage.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort)
		if err != nil {
			return nil, fmt.Errorf("connect to Qdrant: %w", err)
		}
		a.qdrant = qd
		remote, health = qd, qd
		retrievalOpts = append(retrievalOpts, retrieval.WithRemote(qd))
	}

	router := extract.NewRouter(cfg.ExtractOptions(), logger)
	pipeline := indexer.NewPipeline(router, splitter, embedder, collection, remote, logger)
	coordinator := retrieval.NewCoordinator(embedder, collection, retrievalOpts...)
	answerer := answer.NewAnswerer(coordinator, generator, cfg.RetrievalTopK, logger)

	a.server = mcpserver.NewServer(mcpserver.Config{
		Asker:          answerer,
		Retriever:      coordinator,
		Ingester:       pipeline,
		Snapshots:      collection,
		Remote:         health,
		MaxUploadBytes: cfg.MaxUploadSize,
		Stateless:      cfg.MCPStateless,
		Logger:         logger,
	})
	a.handler = mcpserver.NewRouter(a.server)
	return a, nil
}
