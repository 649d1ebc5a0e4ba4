package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"docwise-ai/internal/config"
	"docwise-ai/internal/storage"
	"docwise-ai/internal/vectorstore"
	"docwise-ai/internal/vectorstore/mocks"
)

type fakeEmbedder struct {
	poison string // texts containing this substring fail to embed
	calls  int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int) {
	f.calls++
	vectors := make([][]float32, len(texts))
	failed := 0
	for i, t := range texts {
		if f.poison != "" && strings.Contains(t, f.poison) {
			failed++
			continue
		}
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, failed
}

type pipelineHarness struct {
	pipeline *Pipeline
	docs     *storage.DocumentRepo
	chunks   *storage.ChunkRepo
	store    *mocks.MockVectorStore
	embedder *fakeEmbedder
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := config.Default()
	cfg.QdrantVectorSize = 4

	h := &pipelineHarness{
		docs:     storage.NewDocumentRepo(db),
		chunks:   storage.NewChunkRepo(db),
		store:    mocks.NewMockVectorStore(gomock.NewController(t)),
		embedder: &fakeEmbedder{},
	}
	h.pipeline = NewPipeline(cfg, h.embedder, h.docs, h.chunks, h.store)
	return h
}

func docContent(paragraphs int) string {
	var b strings.Builder
	b.WriteString("# Quarterly Report\n\n")
	for i := 0; i < paragraphs; i++ {
		b.WriteString(strings.Repeat("revenue grew steadily across the period under review ", 12))
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestPipeline_IndexPersistsChunksAndVectors(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()

	var gotPoints []vectorstore.Point
	h.store.EXPECT().Upsert(gomock.Any(), "chunks", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			gotPoints = points
			return nil
		})

	result, err := h.pipeline.Index(ctx, IndexRequest{
		Source:   storage.SourceDocument,
		Filename: "report.md",
		Content:  docContent(4),
	})
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	if result.Skipped {
		t.Fatal("first index must not be skipped")
	}
	if result.Title != "Quarterly Report" {
		t.Errorf("title = %q, want %q", result.Title, "Quarterly Report")
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected chunks")
	}

	records, err := h.chunks.ListByDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("ListByDocument() error: %v", err)
	}
	if len(records) != result.ChunkCount {
		t.Errorf("persisted %d chunks, result says %d", len(records), result.ChunkCount)
	}
	if len(gotPoints) != result.ChunkCount {
		t.Errorf("upserted %d points, want %d", len(gotPoints), result.ChunkCount)
	}

	// Point IDs are the chunk row IDs, and payloads carry retrieval metadata.
	ids := make(map[string]bool)
	for _, r := range records {
		ids[r.ID] = true
	}
	for _, p := range gotPoints {
		if !ids[p.ID] {
			t.Errorf("point ID %s has no matching chunk row", p.ID)
		}
		if p.Meta["document_id"] != result.DocumentID {
			t.Errorf("point document_id = %v, want %s", p.Meta["document_id"], result.DocumentID)
		}
		if _, ok := p.Meta["chunk_index"].(int64); !ok {
			t.Errorf("chunk_index payload should be int64, got %T", p.Meta["chunk_index"])
		}
	}

	if result.Stats.TotalWords == 0 || result.Stats.UniqueHashes == 0 {
		t.Errorf("stats not computed: %+v", result.Stats)
	}
}

func TestPipeline_UnchangedContentSkipped(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	content := docContent(2)

	h.store.EXPECT().Upsert(gomock.Any(), "chunks", gomock.Any()).Return(nil).Times(1)

	first, err := h.pipeline.Index(ctx, IndexRequest{Filename: "report.md", Content: content})
	if err != nil {
		t.Fatalf("first Index() error: %v", err)
	}

	second, err := h.pipeline.Index(ctx, IndexRequest{Filename: "report.md", Content: content})
	if err != nil {
		t.Fatalf("second Index() error: %v", err)
	}
	if !second.Skipped {
		t.Error("unchanged content must be skipped")
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("skipped result document ID = %s, want %s", second.DocumentID, first.DocumentID)
	}
	if h.embedder.calls != 1 {
		t.Errorf("embedder called %d times, want 1", h.embedder.calls)
	}
}

func TestPipeline_ReindexReplacesStaleChunks(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()

	h.store.EXPECT().Upsert(gomock.Any(), "chunks", gomock.Any()).Return(nil).Times(2)

	first, err := h.pipeline.Index(ctx, IndexRequest{Filename: "report.md", Content: docContent(2)})
	if err != nil {
		t.Fatalf("first Index() error: %v", err)
	}
	staleIDs, err := h.chunks.ListIDsByDocument(ctx, first.DocumentID)
	if err != nil {
		t.Fatalf("ListIDsByDocument() error: %v", err)
	}

	// Changed content: the old points must be deleted by their IDs.
	h.store.EXPECT().Delete(gomock.Any(), "chunks", gomock.InAnyOrder(staleIDs)).Return(nil)

	second, err := h.pipeline.Index(ctx, IndexRequest{Filename: "report.md", Content: docContent(5)})
	if err != nil {
		t.Fatalf("second Index() error: %v", err)
	}
	if second.Skipped {
		t.Fatal("changed content must not be skipped")
	}
	if second.DocumentID != first.DocumentID {
		t.Errorf("re-index changed document ID: %s -> %s", first.DocumentID, second.DocumentID)
	}

	records, err := h.chunks.ListByDocument(ctx, first.DocumentID)
	if err != nil {
		t.Fatalf("ListByDocument() error: %v", err)
	}
	for _, r := range records {
		for _, stale := range staleIDs {
			if r.ID == stale {
				t.Errorf("stale chunk row %s survived re-index", stale)
			}
		}
	}
}

func TestPipeline_PartialEmbedFailureTolerated(t *testing.T) {
	h := newPipelineHarness(t)
	h.embedder.poison = "PoisonMarker"
	ctx := context.Background()

	content := docContent(8) + "\n\nPoisonMarker " + strings.Repeat("unembeddable text here ", 30)

	var gotPoints []vectorstore.Point
	h.store.EXPECT().Upsert(gomock.Any(), "chunks", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			gotPoints = points
			return nil
		})

	result, err := h.pipeline.Index(ctx, IndexRequest{Filename: "mixed.md", Content: content})
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	if result.FailedEmbeds == 0 {
		t.Fatal("expected at least one failed embed")
	}
	if len(gotPoints) != result.ChunkCount-result.FailedEmbeds {
		t.Errorf("points = %d, want %d (failed chunks excluded from the vector store)",
			len(gotPoints), result.ChunkCount-result.FailedEmbeds)
	}

	// Failed chunks are still persisted for a later retry.
	records, err := h.chunks.ListByDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("ListByDocument() error: %v", err)
	}
	if len(records) != result.ChunkCount {
		t.Errorf("persisted %d chunks, want all %d", len(records), result.ChunkCount)
	}
}

func TestPipeline_EmptyContent(t *testing.T) {
	h := newPipelineHarness(t)

	result, err := h.pipeline.Index(context.Background(), IndexRequest{Filename: "empty.md", Content: "   \n\n  "})
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	if result.ChunkCount != 0 {
		t.Errorf("chunk count = %d, want 0", result.ChunkCount)
	}
}

func TestPipeline_ValidatesRequest(t *testing.T) {
	h := newPipelineHarness(t)

	if _, err := h.pipeline.Index(context.Background(), IndexRequest{Content: "x"}); err == nil {
		t.Error("missing filename must fail")
	}
	if _, err := h.pipeline.Index(context.Background(), IndexRequest{Filename: "a", Source: "ftp", Content: "x"}); err == nil {
		t.Error("unknown source must fail")
	}
}

func TestPipeline_Delete(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()

	h.store.EXPECT().Upsert(gomock.Any(), "chunks", gomock.Any()).Return(nil)

	result, err := h.pipeline.Index(ctx, IndexRequest{Filename: "report.md", Content: docContent(2)})
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}

	ids, err := h.chunks.ListIDsByDocument(ctx, result.DocumentID)
	if err != nil {
		t.Fatalf("ListIDsByDocument() error: %v", err)
	}
	h.store.EXPECT().Delete(gomock.Any(), "chunks", gomock.InAnyOrder(ids)).Return(nil)

	if err := h.pipeline.Delete(ctx, result.DocumentID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := h.docs.GetByID(ctx, result.DocumentID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("document survived delete: %v", err)
	}
}
