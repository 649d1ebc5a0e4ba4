package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"docwise-ai/internal/config"
	"docwise-ai/internal/http"
	"docwise-ai/internal/indexer"
	"docwise-ai/internal/llm"
	"docwise-ai/internal/rag"
	"docwise-ai/internal/storage"
	"docwise-ai/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	documentRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)

	// Initialize Qdrant vector store
	ctx := context.Background()
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Ensure collection exists with correct vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Validate embedding client vector size (fail-fast)
	embedder := llm.NewEmbeddingsClient(cfg)
	testVec, err := embedder.EmbedText(ctx, "test")
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testVec) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testVec))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Create indexing pipeline
	pipeline := indexer.NewPipeline(cfg, embedder, documentRepo, chunkRepo, vectorStore)

	// Create decision engine
	engine := rag.NewEngine(cfg, embedder, rag.NewSearcher(vectorStore, cfg), documentRepo)
	slog.Info("Decision engine initialized")

	// Create router with dependencies
	router := http.NewRouter(&http.Deps{
		Engine:         engine,
		Pipeline:       pipeline,
		VectorStore:    vectorStore,
		CollectionName: cfg.QdrantCollection,
	})

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
