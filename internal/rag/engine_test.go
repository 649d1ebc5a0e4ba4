package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"docwise-ai/internal/storage"
	"docwise-ai/internal/vectorstore"
	"docwise-ai/internal/vectorstore/mocks"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

type stubDocs struct {
	docs map[string]*storage.Document
}

func (s *stubDocs) GetByID(ctx context.Context, id string) (*storage.Document, error) {
	if d, ok := s.docs[id]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func newTestEngine(t *testing.T, embedder Embedder, store vectorstore.VectorStore, docs DocumentLookup) *Engine {
	t.Helper()
	cfg := testSearcherConfig()
	return NewEngine(cfg, embedder, NewSearcher(store, cfg), docs)
}

func TestEngine_EmbeddingFailureDegradesGracefully(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	// No search expectation: the engine must not reach the vector store.
	engine := newTestEngine(t, &stubEmbedder{err: errors.New("provider down")}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query: "what does the contract say about termination in this document",
	})

	require.NoError(t, err, "infrastructure failure must not surface as an error")
	assert.False(t, resp.ShouldUseDocuments)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "embedding_failed", resp.Stats.DegradedReason)
}

func TestEngine_SearchFailureDegradesGracefully(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("qdrant unreachable"))

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query: "summarize the handbook sections in this document",
	})

	require.NoError(t, err)
	assert.False(t, resp.ShouldUseDocuments)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, "search_failed", resp.Stats.DegradedReason)
}

func TestEngine_GroundedAnswerFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), "chunks", gomock.Any(), 8, gomock.Any()).
		Return([]vectorstore.RawHit{
			rawHit("doc-1", 0, 0.3, "the warranty period is 24 months from purchase"),
			rawHit("doc-1", 1, 0.9, "shipping and returns are described separately"),
		}, nil)

	docs := &stubDocs{docs: map[string]*storage.Document{
		"doc-1": {ID: "doc-1", Source: storage.SourceDocument, Filename: "terms.md", Title: "Terms of Sale"},
	}}
	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, docs)

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query: "how long is the warranty period in this document",
	})

	require.NoError(t, err)
	assert.True(t, resp.ShouldUseDocuments)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "terms.md", resp.Sources[0].Filename)
	assert.Contains(t, resp.ContextText, "[Document: Terms of Sale")
	assert.Contains(t, resp.ContextText, "warranty period is 24 months")
	assert.Equal(t, ReasonDocIntentHighEvidence, resp.Stats.GateReason)
	assert.Greater(t, resp.Stats.ContextTokens, 0)
	assert.Equal(t, len(resp.Sources), resp.Stats.SourceCount)
}

func TestEngine_GreetingNeverGrounded(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.RawHit{rawHit("doc-1", 0, 0.1, "merhaba metni")}, nil)

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{Query: "merhaba"})

	require.NoError(t, err)
	assert.False(t, resp.ShouldUseDocuments)
	assert.Equal(t, ReasonGeneralQueryNoSources, resp.Stats.GateReason)
	assert.Empty(t, resp.ContextText)
}

func TestEngine_LookupMissReportsDocNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.RawHit{rawHit("doc-1", 0, 1.7, "unrelated content entirely")}, nil)

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query: "find the email about the atlas migration plan",
	})

	require.NoError(t, err)
	assert.False(t, resp.ShouldUseDocuments)
	assert.True(t, resp.DocNotFound)
	assert.Equal(t, ReasonLookupLowEvidence, resp.Stats.GateReason)
}

func TestEngine_SelectedDocsWithNoHitsReportsDocNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	// Priority and global stages both come back empty.
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil).Times(2)

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query:          "what are the payment terms here",
		SelectedDocIDs: []string{"doc-1"},
	})

	require.NoError(t, err)
	assert.False(t, resp.ShouldUseDocuments)
	assert.True(t, resp.DocNotFound)
	assert.Equal(t, ReasonNoHits, resp.Stats.GateReason)
}

func TestEngine_DegradedSelectionNotMarkedMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	engine := newTestEngine(t, &stubEmbedder{err: errors.New("provider down")}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query:          "what are the payment terms here",
		SelectedDocIDs: []string{"doc-1"},
	})

	require.NoError(t, err)
	assert.False(t, resp.ShouldUseDocuments)
	// Retrieval being unavailable is not the same as the selection holding
	// nothing; only DegradedReason reports the outage.
	assert.False(t, resp.DocNotFound)
	assert.Equal(t, "embedding_failed", resp.Stats.DegradedReason)
}

func TestEngine_TopScoreIsMaxOverMergedHits(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)

	// Priority stage: one weak hit (score 0.2), insufficient.
	store.EXPECT().Search(gomock.Any(), "chunks", gomock.Any(), 8,
		vectorstore.Filter{DocumentIDs: []string{"doc-1"}}).
		Return([]vectorstore.RawHit{rawHit("doc-1", 0, 1.6, "weak priority hit")}, nil)
	// Global fallback: a stronger hit (score 0.9) that lands after the
	// priority hit in the merged order.
	store.EXPECT().Search(gomock.Any(), "chunks", gomock.Any(), 8,
		vectorstore.Filter{}).
		Return([]vectorstore.RawHit{rawHit("doc-2", 0, 0.2, "strong global hit")}, nil)

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query:          "what are the payment terms in this document",
		SelectedDocIDs: []string{"doc-1"},
	})

	require.NoError(t, err)
	// Merged hits are priority-first, so the best score sits at index 1.
	assert.Equal(t, 2, resp.Stats.HitCount)
	assert.InDelta(t, 0.9, resp.Stats.TopScore, 1e-9)
}

func TestEngine_PromptArbitration(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), "chunks", gomock.Any(), 8, gomock.Any()).
		Return([]vectorstore.RawHit{
			rawHit("doc-1", 0, 0.3, "the warranty period is 24 months from purchase"),
		}, nil)

	docs := &stubDocs{docs: map[string]*storage.Document{
		"doc-1": {ID: "doc-1", Source: storage.SourceDocument, Filename: "terms.md", Title: "Terms of Sale"},
	}}
	cfg := testSearcherConfig()
	cfg.HistoryTokenBudget = 8
	engine := NewEngine(cfg, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, NewSearcher(store, cfg), docs)

	oldTurn := strings.Repeat("an earlier exchange about something else entirely ", 30)
	query := "how long is the warranty period in this document"
	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query:        query,
		SystemPrompt: "answer using the provided context",
		History:      []string{oldTurn, "recent turn"},
	})

	require.NoError(t, err)
	assert.True(t, resp.ShouldUseDocuments)
	require.NotNil(t, resp.Prompt)
	assert.Equal(t, query, resp.Prompt.UserMessage)
	assert.Equal(t, "answer using the provided context", resp.Prompt.SystemPrompt)
	assert.Equal(t, resp.ContextText, resp.Prompt.RagContext)
	// The oversized old turn falls to the history cap.
	assert.Equal(t, []string{"recent turn"}, resp.Prompt.History)
}

func TestEngine_StatsPopulated(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.RawHit{
			rawHit("doc-1", 0, 0.5, "warranty period details"),
		}, nil)

	engine := newTestEngine(t, &stubEmbedder{vec: []float32{1, 0, 0, 0}}, store, &stubDocs{})

	resp, err := engine.Decide(context.Background(), DecideRequest{
		Query: "how long is the warranty period",
	})

	require.NoError(t, err)
	stats := resp.Stats
	assert.Equal(t, QueryTypeQA, stats.QueryType)
	assert.Equal(t, 1, stats.HitCount)
	assert.InDelta(t, 0.75, stats.TopScore, 1e-9)
	assert.Equal(t, 0.5, stats.EvidenceHigh)
	assert.Equal(t, 0.3, stats.EvidenceLow)
	assert.False(t, stats.CacheHit)
}
