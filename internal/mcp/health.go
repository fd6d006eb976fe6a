package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Qdrant    string `json:"qdrant"`
	Snapshot  string `json:"snapshot,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The Qdrant mirror implements this via its Health() method.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// An empty index is healthy; a corrupt snapshot or an unreachable Qdrant
// mirror is not. remote may be nil.
func NewHealthHandler(snapshots ManifestSource, remote HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Create context with 3-second timeout for health check
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Qdrant:    "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		status := indexStatus(snapshots)
		switch {
		case status.Ready:
			response.Index = "ready"
			response.Snapshot = status.SnapshotID
		case status.Message == notReadyMessage:
			response.Index = "empty"
		default:
			response.Index = "corrupt"
			response.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}

		if remote != nil {
			if err := remote.Health(ctx); err != nil {
				response.Qdrant = "disconnected"
				response.Status = "unhealthy"
				code = http.StatusServiceUnavailable
			} else {
				response.Qdrant = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
