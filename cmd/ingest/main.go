// Package main provides the ingest CLI: it indexes one document into the
// local snapshot store used by the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/indexer"
	"github.com/bull/docqa-server/internal/storage"
	"github.com/bull/docqa-server/internal/tokenizer"
)

const sampleChars = 1000

var rootCmd = &cobra.Command{
	Use:   "docqa-ingest <document>",
	Short: "Index a document for question answering",
	Long: `Extracts text from a PDF, Markdown or plain-text document, splits it into
overlapping token windows, embeds every chunk and publishes the result as the
current snapshot. Scanned PDFs are recognized with OCR.

The previous snapshot stays current until the new one is fully written.

Environment variables (flags take precedence):
  DATA_DIR         Snapshot directory (default: data)
  OPENAI_API_KEY   API key for embeddings
  OPENAI_BASE_URL  OpenAI-compatible endpoint (optional)
  VECTOR_BACKEND   local or qdrant (default: local)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runIngest,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("data-dir", "", "snapshot directory")
	flags.Int("chunk-max-tokens", 0, "tokens per chunk")
	flags.Int("chunk-overlap", 0, "tokens shared by consecutive chunks")
	flags.Bool("ocr-enabled", true, "recognize scanned PDFs with OCR")
	flags.String("vector-backend", "", "local or qdrant")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	start := time.Now()

	doc, err := readDocument(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := slog.Default()

	tok, err := tokenizer.ForModel(cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to load tokenizer: %w", err)
	}
	splitter, err := chunker.New(tok, cfg.ChunkMaxTokens, cfg.ChunkOverlap)
	if err != nil {
		return err
	}

	collection, err := storage.OpenCollection(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}

	embeddingClient, err := embedding.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder := embedding.NewOpenAIEmbedder(embeddingClient, cfg.EmbeddingModel, cfg.EmbeddingDimension, cfg.EmbeddingBatchSize)

	var remote indexer.RemoteIndex
	if cfg.VectorBackend == config.BackendQdrant {
		fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.QdrantHost, cfg.QdrantPort)
		qd, err := storage.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant: %w", err)
		}
		defer qd.Close()
		remote = qd
	}

	router := extract.NewRouter(cfg.ExtractOptions(), logger)
	pipeline := indexer.NewPipeline(router, splitter, embedder, collection, remote, logger)

	prepared, err := pipeline.Prepare(ctx, doc)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Printf("Loaded %d pages from %s.\n", len(prepared.Extraction.Pages), doc.Name)
	if prepared.Extraction.Scanned {
		fmt.Println("Document looks scanned; text was recognized with OCR.")
	}
	fmt.Printf("Created %d token chunks.\n", len(prepared.Chunks))
	fmt.Println()
	fmt.Println("--- SAMPLE CHUNK ---")
	if len(prepared.Chunks) > 0 {
		fmt.Println(sample(prepared.Chunks[0].Text, sampleChars))
	} else {
		fmt.Println("(No chunks created; check PDF content.)")
	}
	fmt.Println()

	if len(prepared.Chunks) > 0 {
		fmt.Println("Embedding chunks...")
	}
	result, err := pipeline.Commit(ctx, prepared)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("Saved snapshot %s to %s\n", result.SnapshotID, collection.Dir())
	fmt.Printf("  Chunks: %d\n", result.ChunkCount)
	fmt.Printf("  Extraction: %s\n", result.Method)
	if result.RemoteCollection != "" {
		fmt.Printf("  Qdrant collection: %s\n", result.RemoteCollection)
	}
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// readDocument loads the file at path. Directories and empty files are rejected.
func readDocument(path string) (extract.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return extract.Document{}, fmt.Errorf("file not found: %s", path)
		}
		return extract.Document{}, err
	}
	if info.IsDir() {
		return extract.Document{}, fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Document{}, err
	}
	if len(data) == 0 {
		return extract.Document{}, fmt.Errorf("%s is empty", path)
	}
	return extract.Document{Name: filepath.Base(path), Data: data}, nil
}

// sample returns the first n characters of s.
func sample(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
