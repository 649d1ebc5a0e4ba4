package rag

import (
	"context"
	"errors"
	"log/slog"

	"docwise-ai/internal/config"
	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/storage"
	"docwise-ai/internal/trace"
)

// Embedder turns text into a vector. Satisfied by llm.EmbeddingsClient.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// DocumentLookup resolves document metadata for citations and labels.
// Satisfied by storage.DocumentRepo.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (*storage.Document, error)
}

// Engine wires the retrieval pipeline: classify, embed, search, score, gate,
// build context. It is the single entry point for grounding decisions.
type Engine struct {
	embedder Embedder
	searcher *Searcher
	scorer   *HybridScorer
	gate     *Gate
	builder  *ContextBuilder
	budget   *BudgetManager
	docs     DocumentLookup

	traceSteps bool
}

// NewEngine creates an engine from its collaborators.
func NewEngine(cfg *config.Config, embedder Embedder, searcher *Searcher, docs DocumentLookup) *Engine {
	return &Engine{
		embedder:   embedder,
		searcher:   searcher,
		scorer:     NewHybridScorer(cfg.HybridVectorWeight),
		gate:       NewGate(cfg.EvidenceHigh, cfg.EvidenceLow, cfg.MinHits, cfg.MinOverlap, cfg.AllowGeneralSources),
		builder:    NewContextBuilder(cfg.ContextTokenBudget),
		budget:     NewBudgetManager(cfg.MaxTotalTokens, cfg.HistoryTokenBudget),
		docs:       docs,
		traceSteps: cfg.TraceSteps,
	}
}

// Decide runs the full grounding decision for one query. Infrastructure
// failures (embedding provider down, vector store unreachable) degrade to a
// no-grounding response instead of an error; the caller falls back to
// ungrounded answering.
func (e *Engine) Decide(ctx context.Context, req DecideRequest) (*DecideResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	mode := req.Mode
	if mode == "" {
		mode = ModeQA
	}

	classification := Classify(req.Query, req.SelectedDocIDs)

	stats := RetrievalStats{
		QueryType: classification.QueryType,
		DocIntent: classification.DocIntent,
	}
	stats.EvidenceHigh, stats.EvidenceLow = e.gate.Thresholds(mode)

	// Embed the query. A failure here means no retrieval is possible;
	// degrade rather than fail the call.
	var queryVec []float32
	embedDur, err := trace.Step(ctx, "embed_query", e.traceSteps, func(ctx context.Context) error {
		var embErr error
		queryVec, embErr = e.embedder.EmbedText(ctx, req.Query)
		return embErr
	})
	stats.EmbeddingMS = embedDur.Milliseconds()
	if err != nil {
		logger.WarnContext(ctx, "query embedding failed, degrading to ungrounded answer",
			slog.String("error", err.Error()))
		stats.DegradedReason = "embedding_failed"
		stats.GateReason = ReasonNoHits
		return e.degradedResponse(req, stats), nil
	}

	var result *SearchResult
	queryDur, err := trace.Step(ctx, "vector_search", e.traceSteps, func(ctx context.Context) error {
		var searchErr error
		result, searchErr = e.searcher.Search(ctx, queryVec, req.CandidateIDs, req.SelectedDocIDs)
		return searchErr
	})
	stats.QueryMS = queryDur.Milliseconds()
	if err != nil {
		logger.WarnContext(ctx, "vector search failed, treating as no evidence",
			slog.String("error", err.Error()))
		stats.DegradedReason = "search_failed"
		stats.GateReason = ReasonNoHits
		return e.degradedResponse(req, stats), nil
	}

	hits := result.Hits
	stats.CacheHit = result.CacheHit
	stats.HitCount = len(hits)
	if len(hits) > 0 {
		// The merged list is priority-first, not globally sorted, so the
		// top score is a max over the slice rather than hits[0].
		sum := 0.0
		top := hits[0].VectorScore
		for _, h := range hits {
			sum += h.VectorScore
			if h.VectorScore > top {
				top = h.VectorScore
			}
		}
		stats.TopScore = top
		stats.AvgScore = sum / float64(len(hits))
	}

	e.scorer.Score(hits, classification.Keywords)

	decision := e.gate.Decide(req.Query, classification, hits, mode)
	stats.GateReason = decision.Reason
	stats.TopEvidence, stats.AvgEvidence = evidenceStats(req.Query, classification, hits)

	resp := &DecideResponse{
		ShouldUseDocuments: decision.UseDocuments,
		Sources:            []SourceCitation{},
		Stats:              stats,
	}

	// A lookup or explicit selection that found nothing usable reports
	// doc_not_found so the caller can answer "not found" instead of
	// drifting to general knowledge.
	if !decision.UseDocuments &&
		(decision.Reason == ReasonLookupLowEvidence ||
			(len(req.SelectedDocIDs) > 0 && decision.Reason == ReasonNoHits)) {
		resp.DocNotFound = true
	}

	if !decision.UseDocuments {
		logger.InfoContext(ctx, "grounding rejected",
			slog.String("reason", decision.Reason),
			slog.String("query_type", string(classification.QueryType)))
		resp.Prompt = e.fitPrompt(req, "")
		return resp, nil
	}

	docMeta := e.lookupDocuments(ctx, decision.Sources)
	built := e.builder.Build(decision.Sources, docMeta)

	resp.ContextText = built.Text
	resp.Sources = Citations(built.Included, docMeta)
	resp.Stats.ContextTokens = built.Tokens
	resp.Stats.SourceCount = len(resp.Sources)
	resp.Prompt = e.fitPrompt(req, built.Text)

	// The context builder can only shrink the source set, and the total
	// prompt budget can only shrink the fitted context further; if either
	// squeezed everything out, the decision flips to ungrounded.
	if len(resp.Sources) == 0 || resp.Prompt.RagContext == "" {
		resp.ShouldUseDocuments = false
		resp.ContextText = ""
		resp.Sources = []SourceCitation{}
		resp.Stats.SourceCount = 0
		resp.Stats.GateReason = decision.Reason + "_BUDGET_EXHAUSTED"
	}

	logger.InfoContext(ctx, "grounding decision",
		slog.Bool("use_documents", resp.ShouldUseDocuments),
		slog.String("reason", resp.Stats.GateReason),
		slog.Int("sources", len(resp.Sources)),
		slog.Int("context_tokens", resp.Stats.ContextTokens),
		slog.Bool("cache_hit", stats.CacheHit))

	return resp, nil
}

// degradedResponse is the no-grounding answer used when infrastructure
// fails. DocNotFound stays false: "retrieval unavailable" is reported via
// DegradedReason and must not read as "the selected documents have nothing".
func (e *Engine) degradedResponse(req DecideRequest, stats RetrievalStats) *DecideResponse {
	return &DecideResponse{
		Sources:            []SourceCitation{},
		Prompt:             e.fitPrompt(req, ""),
		Stats:              stats,
		ShouldUseDocuments: false,
	}
}

// fitPrompt runs total-budget arbitration over the prompt components. The
// user message is always the query itself; the RAG context is whatever the
// grounding decision produced, possibly empty.
func (e *Engine) fitPrompt(req DecideRequest, ragContext string) *PromptParts {
	fitted := e.budget.Fit(PromptParts{
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		RagContext:   ragContext,
		UserMessage:  req.Query,
	})
	return &fitted
}

// lookupDocuments fetches metadata for every distinct document among the
// sources. Missing metadata is tolerated; labels fall back to document IDs.
func (e *Engine) lookupDocuments(ctx context.Context, hits []ScoredHit) map[string]*storage.Document {
	docs := make(map[string]*storage.Document)
	if e.docs == nil {
		return docs
	}
	for _, h := range hits {
		if _, done := docs[h.DocumentID]; done {
			continue
		}
		doc, err := e.docs.GetByID(ctx, h.DocumentID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				contextutil.LoggerFromContext(ctx).WarnContext(ctx, "document metadata lookup failed",
					slog.String("document_id", h.DocumentID),
					slog.String("error", err.Error()))
			}
			docs[h.DocumentID] = nil
			continue
		}
		docs[h.DocumentID] = doc
	}
	return docs
}

func evidenceStats(query string, c QueryClassification, hits []ScoredHit) (top, avg float64) {
	if len(hits) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, h := range hits {
		m := ComputeEvidence(query, c, h)
		sum += m.EvidenceScore
		if m.EvidenceScore > top {
			top = m.EvidenceScore
		}
	}
	return top, sum / float64(len(hits))
}
