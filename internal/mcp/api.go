package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/retrieval"
)

// DefaultMaxUploadBytes bounds uploaded documents.
const DefaultMaxUploadBytes = 50 << 20

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type uploadResponse struct {
	Message   string `json:"message"`
	NumChunks int    `json:"num_chunks"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewRouter mounts the REST API, the health check and the MCP endpoint on
// one mux, wrapped in permissive CORS:
//
//	GET  /            status (JSON) or landing page (browsers)
//	GET  /health      index and Qdrant health
//	POST /upload-pdf  multipart field "file"; ingests and publishes
//	POST /ask         {"question": "..."} -> {"question", "answer"}
//	     /mcp         MCP Streamable HTTP
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", NewLandingHandler())
	mux.HandleFunc("GET /health", NewHealthHandler(s.cfg.Snapshots, s.cfg.Remote))
	mux.HandleFunc("POST /upload-pdf", s.handleUpload)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: s.cfg.Stateless}))
	return CORS(mux)
}

// CORS allows any origin, method and header.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			// Credentialed requests need the origin echoed instead of "*".
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Detail: "uploaded file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "multipart field \"file\" is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "failed to read uploaded file"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "uploaded file is empty"})
		return
	}

	doc := extract.Document{Name: filepath.Base(header.Filename), Data: data}
	result, err := s.cfg.Ingester.Ingest(r.Context(), doc)
	if err != nil {
		s.cfg.Logger.Error("Ingestion failed", "document", doc.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "ingestion failed: " + err.Error()})
		return
	}

	message := "Document processed and index created!"
	if result.ChunkCount == 0 {
		message = "Document processed, but no extractable text was found."
	}
	writeJSON(w, http.StatusOK, uploadResponse{Message: message, NumChunks: result.ChunkCount})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "request body must be {\"question\": \"...\"}"})
		return
	}

	ans, err := s.cfg.Asker.Ask(r.Context(), req.Question)
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuestion):
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	case errors.Is(err, retrieval.ErrNotReady):
		writeJSON(w, http.StatusConflict, errorResponse{Detail: notReadyMessage})
		return
	case err != nil:
		s.cfg.Logger.Error("Ask failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "failed to answer question"})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Question: req.Question, Answer: ans.Answer})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
