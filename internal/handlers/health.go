package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/vectorstore"
)

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	vectorStore        vectorstore.VectorStore
	collectionName     string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(vectorStore vectorstore.VectorStore, collectionName string) *HealthHandler {
	return &HealthHandler{
		vectorStore:        vectorStore,
		collectionName:     collectionName,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	// Overall health status: "healthy" or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// List of issues (only present if status is unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP returns 200 when the vector store is reachable and the chunk
// collection exists, 503 otherwise. The embedding provider is not probed
// here: its failures already degrade gracefully per request, and probing it
// on every health check adds latency.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string

	if h.checkVectorStore(checkCtx, logger) {
		checks["vector_store"] = "ok"
	} else {
		checks["vector_store"] = "error"
		issues = append(issues, "vector_store_unavailable")
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if len(issues) > 0 {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Issues:    issues,
	})
}

// checkVectorStore checks if the vector store is accessible.
func (h *HealthHandler) checkVectorStore(ctx context.Context, logger *slog.Logger) bool {
	exists, err := h.vectorStore.CollectionExists(ctx, h.collectionName)
	if err != nil {
		logger.WarnContext(ctx, "vector store health check failed", "error", err)
		return false
	}
	if !exists {
		logger.WarnContext(ctx, "vector store collection does not exist", "collection", h.collectionName)
		return false
	}
	return true
}
