package rag

// QueryType classifies a user query by intent.
type QueryType string

const (
	QueryTypeChitchat         QueryType = "chitchat"
	QueryTypeDefinition       QueryType = "definition"
	QueryTypeGeneralKnowledge QueryType = "general_knowledge"
	QueryTypeGeneralMath      QueryType = "general_math"
	QueryTypeLookup           QueryType = "lookup"
	QueryTypeQA               QueryType = "qa"
)

// Mode selects how the decision thresholds are applied.
type Mode string

const (
	ModeQA        Mode = "qa"
	ModeSummarize Mode = "summarize"
	ModeExtract   Mode = "extract"
)

// Scope marks which retrieval pass produced a hit.
type Scope string

const (
	ScopePriority Scope = "priority"
	ScopeGlobal   Scope = "global"
)

// ScoredHit is one retrieved chunk with its scores. Produced per query and
// never persisted.
type ScoredHit struct {
	DocumentID  string
	ChunkIndex  int
	Text        string
	VectorScore float64 // normalized to [0,1]
	Distance    float64
	HybridScore float64
	Scope       Scope
	Meta        map[string]any
}

// EvidenceMetrics holds the per-hit corroboration signals computed by the
// evidence gate.
type EvidenceMetrics struct {
	VectorScore    float64
	EvidenceScore  float64 // clamped to [0,1]
	TermOverlap    int
	HasNumberMatch bool
	HasEntityMatch bool
}

// QueryClassification is the classifier output for one query.
type QueryClassification struct {
	QueryType   QueryType
	DocIntent   bool
	Keywords    []string
	IsVeryShort bool
}

// EvidenceDecision is the authoritative grounding decision. Sources is
// non-empty exactly when UseDocuments is true.
type EvidenceDecision struct {
	UseDocuments bool
	Sources      []ScoredHit
	Reason       string
	QueryType    QueryType
	DocIntent    bool
}

// SourceCitation is the caller-facing citation built from an accepted hit.
type SourceCitation struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Title      string  `json:"title,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	Scope      Scope   `json:"scope"`
}

// RetrievalStats is the observability payload for one Decide call.
type RetrievalStats struct {
	QueryType      QueryType `json:"query_type"`
	DocIntent      bool      `json:"doc_intent"`
	HitCount       int       `json:"hit_count"`
	TopScore       float64   `json:"top_score"`
	AvgScore       float64   `json:"avg_score"`
	TopEvidence    float64   `json:"top_evidence"`
	AvgEvidence    float64   `json:"avg_evidence"`
	EvidenceHigh   float64   `json:"evidence_high"`
	EvidenceLow    float64   `json:"evidence_low"`
	CacheHit       bool      `json:"cache_hit"`
	EmbeddingMS    int64     `json:"embedding_ms"`
	QueryMS        int64     `json:"query_ms"`
	ContextTokens  int       `json:"context_tokens"`
	SourceCount    int       `json:"source_count"`
	GateReason     string    `json:"gate_reason"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
}

// DecideRequest is the input of the decision API. SystemPrompt and History
// are optional; when the caller supplies them, the response carries the
// budget-fitted prompt parts alongside the grounding decision.
type DecideRequest struct {
	Query          string   `json:"query"`
	SelectedDocIDs []string `json:"selected_doc_ids,omitempty"`
	CandidateIDs   []string `json:"candidate_document_ids,omitempty"`
	Mode           Mode     `json:"mode,omitempty"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	History        []string `json:"chat_history,omitempty"`
}

// DecideResponse is the output of the decision API.
type DecideResponse struct {
	ContextText        string           `json:"context_text"`
	Sources            []SourceCitation `json:"sources"`
	Prompt             *PromptParts     `json:"prompt,omitempty"`
	Stats              RetrievalStats   `json:"retrieval_stats"`
	ShouldUseDocuments bool             `json:"should_use_documents"`
	DocNotFound        bool             `json:"doc_not_found"`
}

// Gate decision reasons, logged for audit.
const (
	ReasonNoHits                  = "NO_HITS"
	ReasonGeneralQueryNoSources   = "GENERAL_QUERY_NO_SOURCES"
	ReasonGeneralQueryWithSources = "GENERAL_QUERY_WITH_SOURCES"
	ReasonVeryShortQuery          = "VERY_SHORT_QUERY"
	ReasonLookupLowEvidence       = "LOOKUP_LOW_EVIDENCE"
	ReasonDocIntentHighEvidence   = "DOC_INTENT_HIGH_EVIDENCE"
	ReasonDocIntentModerate       = "DOC_INTENT_MODERATE_EVIDENCE"
	ReasonDocIntentLowEvidence    = "DOC_INTENT_LOW_EVIDENCE"
	ReasonQAHighEvidence          = "QA_HIGH_EVIDENCE"
	ReasonQALowEvidence           = "QA_LOW_EVIDENCE"
	ReasonInternalError           = "INTERNAL_ERROR"
)
