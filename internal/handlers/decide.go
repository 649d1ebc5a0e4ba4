package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/rag"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// writeJSON writes a JSON success response.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// validModes for the decide request.
var validModes = map[rag.Mode]bool{
	"":                true,
	rag.ModeQA:        true,
	rag.ModeSummarize: true,
	rag.ModeExtract:   true,
}

// DecideHandler handles grounding decision requests.
type DecideHandler struct {
	engine *rag.Engine
}

// NewDecideHandler creates a new DecideHandler.
func NewDecideHandler(engine *rag.Engine) *DecideHandler {
	return &DecideHandler{engine: engine}
}

// ServeHTTP runs the grounding decision for a query. The response always has
// status 200 when the pipeline itself ran: "no grounding" is a policy
// outcome, not an error.
func (h *DecideHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req rag.DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		logger.WarnContext(ctx, "empty query in request")
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if !validModes[req.Mode] {
		writeError(w, http.StatusBadRequest, "Mode must be one of qa, summarize, extract")
		return
	}

	resp, err := h.engine.Decide(ctx, req)
	if err != nil {
		logger.ErrorContext(ctx, "decision failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to process query")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
