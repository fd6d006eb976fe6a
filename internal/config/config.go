// Package config loads service configuration from the environment, an
// optional .env file, an optional config file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/embedding"
	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/retrieval"
)

// Vector backends.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting of the ingest tool and the server.
type Config struct {
	DataDir string

	ChunkMaxTokens   int
	ChunkOverlap     int
	RetrievalTopK    int
	ContextCharLimit int

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int
	ChatModel          string
	ChatTemperature    float64

	OCREnabled   bool
	OCRDPI       float64
	OCRLanguages []string
	OCRWorkers   int

	VectorBackend string
	QdrantHost    string
	QdrantPort    int

	Port          string
	ServerMode    bool
	MCPStateless  bool
	MaxUploadSize int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("CHUNK_MAX_TOKENS", chunker.DefaultMaxTokens)
	v.SetDefault("CHUNK_OVERLAP", chunker.DefaultOverlap)
	v.SetDefault("RETRIEVAL_TOP_K", retrieval.DefaultTopK)
	v.SetDefault("CONTEXT_CHAR_LIMIT", retrieval.DefaultCharLimit)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("EMBEDDING_MODEL", embedding.DefaultModel)
	v.SetDefault("EMBEDDING_DIMENSION", embedding.DefaultDimension)
	v.SetDefault("EMBEDDING_BATCH_SIZE", embedding.DefaultBatchSize)
	v.SetDefault("CHAT_MODEL", answer.DefaultModel)
	v.SetDefault("CHAT_TEMPERATURE", answer.DefaultTemperature)
	v.SetDefault("OCR_ENABLED", true)
	v.SetDefault("OCR_DPI", extract.DefaultDPI)
	v.SetDefault("OCR_LANGUAGES", "eng")
	v.SetDefault("OCR_WORKERS", extract.DefaultOCRWorkers)
	v.SetDefault("VECTOR_BACKEND", BackendLocal)
	v.SetDefault("QDRANT_HOST", "localhost")
	v.SetDefault("QDRANT_PORT", 6334)
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_MODE", false)
	v.SetDefault("MCP_STATELESS", false)
	v.SetDefault("MAX_UPLOAD_BYTES", 50<<20)
}

// Load reads configuration. Precedence, highest first: flags that were set,
// environment, CONFIG_FILE (if any), defaults. A .env file in the working
// directory is loaded into the environment first when present.
// Flags are matched by name: --data-dir binds DATA_DIR.
func Load(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), flags)
}

func load(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	cfg := &Config{
		DataDir:            v.GetString("DATA_DIR"),
		ChunkMaxTokens:     v.GetInt("CHUNK_MAX_TOKENS"),
		ChunkOverlap:       v.GetInt("CHUNK_OVERLAP"),
		RetrievalTopK:      v.GetInt("RETRIEVAL_TOP_K"),
		ContextCharLimit:   v.GetInt("CONTEXT_CHAR_LIMIT"),
		OpenAIAPIKey:       strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIBaseURL:      v.GetString("OPENAI_BASE_URL"),
		EmbeddingModel:     v.GetString("EMBEDDING_MODEL"),
		EmbeddingDimension: v.GetInt("EMBEDDING_DIMENSION"),
		EmbeddingBatchSize: v.GetInt("EMBEDDING_BATCH_SIZE"),
		ChatModel:          v.GetString("CHAT_MODEL"),
		ChatTemperature:    v.GetFloat64("CHAT_TEMPERATURE"),
		OCREnabled:         v.GetBool("OCR_ENABLED"),
		OCRDPI:             v.GetFloat64("OCR_DPI"),
		OCRLanguages:       splitList(v.GetString("OCR_LANGUAGES")),
		OCRWorkers:         v.GetInt("OCR_WORKERS"),
		VectorBackend:      strings.ToLower(v.GetString("VECTOR_BACKEND")),
		QdrantHost:         v.GetString("QDRANT_HOST"),
		QdrantPort:         v.GetInt("QDRANT_PORT"),
		Port:               v.GetString("PORT"),
		ServerMode:         v.GetBool("SERVER_MODE"),
		MCPStateless:       v.GetBool("MCP_STATELESS"),
		MaxUploadSize:      v.GetInt64("MAX_UPLOAD_BYTES"),
	}
	// Embeddings do not depend on the generation key: without one they go to
	// a local compatible endpoint unless OPENAI_BASE_URL says otherwise.
	if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = embedding.DefaultLocalBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if err := chunker.Validate(c.ChunkMaxTokens, c.ChunkOverlap); err != nil {
		return err
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: DATA_DIR is empty", ErrInvalid)
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must be positive", ErrInvalid)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("%w: MAX_UPLOAD_BYTES must be positive", ErrInvalid)
	}
	switch c.VectorBackend {
	case BackendLocal, BackendQdrant:
	default:
		return fmt.Errorf("%w: unknown VECTOR_BACKEND %q", ErrInvalid, c.VectorBackend)
	}
	return nil
}

// ExtractOptions returns the extraction settings.
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{
		OCREnabled: c.OCREnabled,
		DPI:        c.OCRDPI,
		Languages:  c.OCRLanguages,
		Workers:    c.OCRWorkers,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' }) {
		out = append(out, part)
	}
	return out
}
