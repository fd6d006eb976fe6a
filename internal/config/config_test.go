package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/chunker"
	"github.com/bull/docqa-server/internal/embedding"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 300, cfg.ChunkMaxTokens)
	assert.Equal(t, 80, cfg.ChunkOverlap)
	assert.Equal(t, 3, cfg.RetrievalTopK)
	assert.Equal(t, 800, cfg.ContextCharLimit)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, "gpt-4.1-mini", cfg.ChatModel)
	assert.InDelta(t, 0.2, cfg.ChatTemperature, 1e-9)
	assert.True(t, cfg.OCREnabled)
	assert.Equal(t, []string{"eng"}, cfg.OCRLanguages)
	assert.Equal(t, BackendLocal, cfg.VectorBackend)
	assert.Equal(t, 6334, cfg.QdrantPort)
	assert.Equal(t, "8080", cfg.Port)
	assert.False(t, cfg.ServerMode)
	assert.False(t, cfg.MCPStateless)
	assert.EqualValues(t, 50<<20, cfg.MaxUploadSize)
}

func TestLoad_EmbeddingEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		baseURL string
		want    string
	}{
		{"no key uses local endpoint", "", "", embedding.DefaultLocalBaseURL},
		{"no key keeps configured endpoint", "", "http://embed.internal/v1/", "http://embed.internal/v1/"},
		{"key uses SDK default", "sk-test", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.key)
			t.Setenv("OPENAI_BASE_URL", tt.baseURL)

			cfg, err := load(viper.New(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.OpenAIBaseURL)
		})
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/docqa")
	t.Setenv("CHUNK_MAX_TOKENS", "200")
	t.Setenv("CHUNK_OVERLAP", "20")
	t.Setenv("OCR_LANGUAGES", "eng+deu")
	t.Setenv("VECTOR_BACKEND", "Qdrant")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("OPENAI_API_KEY", "  sk-test \n")

	cfg, err := load(viper.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/docqa", cfg.DataDir)
	assert.Equal(t, 200, cfg.ChunkMaxTokens)
	assert.Equal(t, 20, cfg.ChunkOverlap)
	assert.Equal(t, []string{"eng", "deu"}, cfg.OCRLanguages)
	assert.Equal(t, BackendQdrant, cfg.VectorBackend)
	assert.True(t, cfg.ServerMode)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("data-dir", "", "")
	fs.Int("chunk-max-tokens", 0, "")
	require.NoError(t, fs.Parse([]string{"--data-dir", "from-flag"}))

	cfg, err := load(viper.New(), fs)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.DataDir)
	// Unset flags do not shadow defaults.
	assert.Equal(t, 300, cfg.ChunkMaxTokens)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CHUNK_MAX_TOKENS: 512\nRETRIEVAL_TOP_K: 5\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := load(viper.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.ChunkMaxTokens)
	assert.Equal(t, 5, cfg.RetrievalTopK)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataDir:            "data",
			ChunkMaxTokens:     300,
			ChunkOverlap:       80,
			EmbeddingDimension: 1536,
			VectorBackend:      BackendLocal,
			MaxUploadSize:      1 << 20,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"overlap equals window", func(c *Config) { c.ChunkOverlap = 300 }, chunker.ErrInvalidConfig},
		{"zero window", func(c *Config) { c.ChunkMaxTokens = 0 }, chunker.ErrInvalidConfig},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, chunker.ErrInvalidConfig},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, ErrInvalid},
		{"bad dimension", func(c *Config) { c.EmbeddingDimension = 0 }, ErrInvalid},
		{"unknown backend", func(c *Config) { c.VectorBackend = "faiss" }, ErrInvalid},
		{"zero upload limit", func(c *Config) { c.MaxUploadSize = 0 }, ErrInvalid},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.target)
		})
	}
}
