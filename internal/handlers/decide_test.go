package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"docwise-ai/internal/config"
	"docwise-ai/internal/rag"
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

type stubDocs struct{}

func (s *stubDocs) GetByID(ctx context.Context, id string) (*storage.Document, error) {
	return nil, storage.ErrNotFound
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.QdrantVectorSize = 4
	return cfg
}

func newDecideHandler(t *testing.T, store vectorstore.VectorStore, embedErr error) *DecideHandler {
	t.Helper()
	cfg := testConfig()
	embedder := &stubEmbedder{vec: []float32{1, 0, 0, 0}, err: embedErr}
	engine := rag.NewEngine(cfg, embedder, rag.NewSearcher(store, cfg), &stubDocs{})
	return NewDecideHandler(engine)
}

func TestDecideHandler_RejectsInvalidRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newDecideHandler(t, mocks.NewMockVectorStore(ctrl), nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "malformed json", body: "{not json", want: http.StatusBadRequest},
		{name: "empty query", body: `{"query": "  "}`, want: http.StatusBadRequest},
		{name: "unknown mode", body: `{"query": "q", "mode": "translate"}`, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/decide", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDecideHandler_GroundedDecision(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]vectorstore.RawHit{
			{
				Distance: 0.3,
				Meta: map[string]any{
					"document_id": "doc-1",
					"chunk_index": int64(0),
					"text":        "the warranty period is 24 months",
				},
			},
		}, nil)

	h := newDecideHandler(t, store, nil)

	body := `{
		"query": "how long is the warranty period in this document",
		"system_prompt": "answer using the provided context",
		"chat_history": ["earlier turn"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/decide", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp rag.DecideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.ShouldUseDocuments {
		t.Errorf("should_use_documents = false, want true; stats: %+v", resp.Stats)
	}
	if len(resp.Sources) == 0 {
		t.Error("expected sources")
	}
	if resp.ContextText == "" {
		t.Error("expected context text")
	}
	if resp.Prompt == nil {
		t.Fatal("expected budget-fitted prompt in response")
	}
	if resp.Prompt.RagContext != resp.ContextText {
		t.Error("fitted prompt should carry the built context")
	}
	if resp.Prompt.SystemPrompt != "answer using the provided context" {
		t.Errorf("prompt system_prompt = %q", resp.Prompt.SystemPrompt)
	}
}

func TestDecideHandler_DegradedInfrastructureStillReturns200(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newDecideHandler(t, mocks.NewMockVectorStore(ctrl), errors.New("embedding provider down"))

	body := `{"query": "what does the contract say in this document"}`
	req := httptest.NewRequest(http.MethodPost, "/api/decide", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (degradation is a policy outcome)", rec.Code)
	}
	var resp rag.DecideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ShouldUseDocuments {
		t.Error("degraded call must not claim grounding")
	}
}
