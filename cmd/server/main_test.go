package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa-server/internal/answer"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/embedding"
)

const testDimension = 8

// newEmbeddingServer answers /v1/embeddings without checking credentials.
func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float64, testDimension)
			vec[0] = float64(len(text))
			vec[1] = 1
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:            t.TempDir(),
		ChunkMaxTokens:     40,
		ChunkOverlap:       10,
		RetrievalTopK:      3,
		ContextCharLimit:   800,
		OpenAIBaseURL:      baseURL,
		EmbeddingModel:     embedding.DefaultModel,
		EmbeddingDimension: testDimension,
		EmbeddingBatchSize: 16,
		VectorBackend:      config.BackendLocal,
		MaxUploadSize:      1 << 20,
	}
}

func upload(t *testing.T, handler http.Handler, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_WithoutAPIKeyAnswersWithContext(t *testing.T) {
	embeddings := newEmbeddingServer(t)
	app, err := newApp(testConfig(t, embeddings.URL+"/v1/"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rec := upload(t, app.handler, "warranty.txt", "The widget is covered for two years from the date of purchase.")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"How long is the warranty?"}`))
	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "How long is the warranty?", resp.Question)
	assert.True(t, strings.HasPrefix(resp.Answer, answer.FallbackPrefix), resp.Answer)
	assert.Contains(t, resp.Answer, "two years")
}

func TestNewApp_WithoutAPIKeyBeforeIngest(t *testing.T) {
	app, err := newApp(testConfig(t, newEmbeddingServer(t).URL+"/v1/"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"anything"}`))
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestNewApp_LoadedConfigWithoutCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, embedding.DefaultLocalBaseURL, cfg.OpenAIBaseURL)

	app, err := newApp(cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
