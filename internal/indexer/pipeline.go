package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"docwise-ai/internal/config"
	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/storage"
	"docwise-ai/internal/trace"
	"docwise-ai/internal/vectorstore"
)

// Embedder is the batch embedding contract the pipeline needs.
// Satisfied by llm.EmbeddingsClient.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, int)
}

// IndexRequest describes one document or email to index.
type IndexRequest struct {
	Source   string `json:"source"` // "document" or "email"
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Subject  string `json:"subject,omitempty"` // email only
	Sender   string `json:"sender,omitempty"`  // email only
}

// IndexResult summarizes one indexing run.
type IndexResult struct {
	DocumentID   string     `json:"document_id"`
	Title        string     `json:"title,omitempty"`
	Skipped      bool       `json:"skipped"` // content hash unchanged
	ChunkCount   int        `json:"chunk_count"`
	FailedEmbeds int        `json:"failed_embeds"`
	Stats        ChunkStats `json:"chunk_stats"`
}

// Pipeline turns raw content into persisted, embedded, searchable chunks.
// Re-indexing the same filename replaces the previous chunks and vector
// points; unchanged content (by hash) is skipped entirely.
type Pipeline struct {
	normalizer *MarkdownNormalizer
	chunker    *Chunker
	embedder   Embedder
	documents  storage.DocumentStore
	chunks     storage.ChunkStore
	store      vectorstore.VectorStore
	collection string
	traceSteps bool
}

// NewPipeline wires the indexing pipeline from its collaborators.
func NewPipeline(cfg *config.Config, embedder Embedder, documents storage.DocumentStore, chunks storage.ChunkStore, store vectorstore.VectorStore) *Pipeline {
	return &Pipeline{
		normalizer: NewMarkdownNormalizer(),
		chunker:    NewChunker(cfg),
		embedder:   embedder,
		documents:  documents,
		chunks:     chunks,
		store:      store,
		collection: cfg.QdrantCollection,
		traceSteps: cfg.TraceSteps,
	}
}

// Index processes one document end to end: normalize, chunk, embed, persist,
// upsert vectors. Chunks whose embedding fails are excluded from the vector
// store but still persisted, so a later re-index can retry them.
func (p *Pipeline) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if req.Source == "" {
		req.Source = storage.SourceDocument
	}
	if req.Source != storage.SourceDocument && req.Source != storage.SourceEmail {
		return nil, fmt.Errorf("unknown source %q", req.Source)
	}

	contentHash := contentHash(req.Content)

	existing, err := p.documents.GetByFilename(ctx, req.Source, req.Filename)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	if existing != nil && existing.Hash == contentHash {
		logger.InfoContext(ctx, "content unchanged, skipping re-index",
			slog.String("filename", req.Filename))
		return &IndexResult{DocumentID: existing.ID, Title: existing.Title, Skipped: true}, nil
	}

	docID := uuid.NewString()
	if existing != nil {
		docID = existing.ID
	}

	var title string
	var chunks []Chunk
	_, err = trace.Step(ctx, "normalize_and_chunk", p.traceSteps, func(ctx context.Context) error {
		var normalized string
		title, normalized = p.normalizer.Normalize([]byte(req.Content), req.Filename)
		chunks = p.chunker.Chunk(normalized)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(chunks) == 0 {
		logger.WarnContext(ctx, "document produced no chunks",
			slog.String("filename", req.Filename))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	var failedEmbeds int
	_, err = trace.Step(ctx, "embed_chunks", p.traceSteps, func(ctx context.Context) error {
		vectors, failedEmbeds = p.embedder.EmbedBatch(ctx, texts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failedEmbeds > 0 {
		logger.WarnContext(ctx, "some chunks failed to embed",
			slog.String("filename", req.Filename),
			slog.Int("failed", failedEmbeds),
			slog.Int("total", len(chunks)))
	}

	// Replace the previous version: stale vector points first, then rows.
	if existing != nil {
		if err := p.removeStaleChunks(ctx, docID); err != nil {
			return nil, err
		}
	}

	doc := &storage.Document{
		ID:       docID,
		Source:   req.Source,
		Filename: req.Filename,
		Title:    title,
		Subject:  req.Subject,
		Sender:   req.Sender,
		Hash:     contentHash,
	}
	if err := p.documents.Upsert(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}

	records := make([]storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, 0, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		records[i] = storage.ChunkRecord{
			ID:            id,
			DocumentID:    docID,
			ChunkIndex:    c.Index,
			Text:          c.Text,
			TextType:      string(c.TextType),
			WordCount:     c.WordCount,
			TokenEstimate: c.TokenEstimate,
			DedupHash:     c.DedupHash,
		}
		if vectors[i] == nil {
			continue
		}
		points = append(points, vectorstore.Point{
			ID:  id,
			Vec: vectors[i],
			Meta: map[string]any{
				"document_id": docID,
				"chunk_index": int64(c.Index),
				"text":        c.Text,
				"text_type":   string(c.TextType),
				"source":      req.Source,
			},
		})
	}

	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to persist chunks: %w", err)
	}

	if len(points) > 0 {
		_, err = trace.Step(ctx, "upsert_vectors", p.traceSteps, func(ctx context.Context) error {
			return p.store.Upsert(ctx, p.collection, points)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}

	result := &IndexResult{
		DocumentID:   docID,
		Title:        title,
		ChunkCount:   len(chunks),
		FailedEmbeds: failedEmbeds,
		Stats:        ComputeChunkStats(chunks),
	}

	logger.InfoContext(ctx, "document indexed",
		slog.String("document_id", docID),
		slog.String("filename", req.Filename),
		slog.Int("chunks", len(chunks)),
		slog.Int("failed_embeds", failedEmbeds))

	return result, nil
}

// Delete removes a document, its chunk rows, and its vector points.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if err := p.removeStaleChunks(ctx, documentID); err != nil {
		return err
	}
	if err := p.documents.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// removeStaleChunks deletes a document's vector points and chunk rows. Point
// IDs equal chunk row IDs, so the row listing drives the vector delete.
func (p *Pipeline) removeStaleChunks(ctx context.Context, documentID string) error {
	ids, err := p.chunks.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list chunk ids: %w", err)
	}
	if len(ids) > 0 {
		if err := p.store.Delete(ctx, p.collection, ids); err != nil {
			return fmt.Errorf("failed to delete vector points: %w", err)
		}
	}
	if err := p.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete chunk rows: %w", err)
	}
	return nil
}

// contentHash fingerprints raw content for change detection. Unlike the
// chunk dedup hash, it is case- and whitespace-sensitive.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
