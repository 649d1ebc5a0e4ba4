package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docwise-ai/internal/handlers"
	"docwise-ai/internal/indexer"
	"docwise-ai/internal/rag"
	"docwise-ai/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine         *rag.Engine
	Pipeline       *indexer.Pipeline
	VectorStore    vectorstore.VectorStore
	CollectionName string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(LoggerMiddleware)

	decideHandler := handlers.NewDecideHandler(deps.Engine)
	indexHandler := handlers.NewIndexHandler(deps.Pipeline)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.CollectionName)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/decide", decideHandler)
		r.Method(http.MethodPost, "/index", indexHandler)
		r.Delete("/documents/{id}", indexHandler.Delete)
		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
