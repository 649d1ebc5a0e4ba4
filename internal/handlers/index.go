package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/indexer"
	"docwise-ai/internal/storage"
)

// maxIndexBodyBytes caps the accepted request size (10 MiB).
const maxIndexBodyBytes = 10 << 20

// IndexHandler handles document indexing and deletion.
type IndexHandler struct {
	pipeline *indexer.Pipeline
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(pipeline *indexer.Pipeline) *IndexHandler {
	return &IndexHandler{pipeline: pipeline}
}

// ServeHTTP indexes one document or email from the request body.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxIndexBodyBytes)

	var req indexer.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Filename) == "" {
		writeError(w, http.StatusBadRequest, "Filename is required")
		return
	}

	result, err := h.pipeline.Index(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "indexing failed", "filename", req.Filename, "error", err)
		if strings.Contains(err.Error(), "unknown source") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to index document")
		return
	}

	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// Delete removes a document and everything derived from it.
func (h *IndexHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Document ID is required")
		return
	}

	if err := h.pipeline.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		logger.ErrorContext(ctx, "delete failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
