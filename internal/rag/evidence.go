package rag

import (
	"fmt"
	"strings"
)

// Evidence score bonuses and penalties.
const (
	termOverlapBonusMax  = 0.3
	termOverlapBonusStep = 0.1
	numberMatchBonus     = 0.15
	entityMatchBonus     = 0.1
	genericQueryPenalty  = 0.1
)

// modeThresholdScale lowers evidence thresholds for summarize/extract, which
// always want grounding.
const modeThresholdScale = 0.8

// Gate turns hybrid-scored hits plus a query classification into the final
// grounding decision.
type Gate struct {
	evidenceHigh        float64
	evidenceLow         float64
	minHits             int
	minOverlap          int
	allowGeneralSources bool
}

// NewGate creates an evidence gate with the configured thresholds.
func NewGate(evidenceHigh, evidenceLow float64, minHits, minOverlap int, allowGeneralSources bool) *Gate {
	return &Gate{
		evidenceHigh:        evidenceHigh,
		evidenceLow:         evidenceLow,
		minHits:             minHits,
		minOverlap:          minOverlap,
		allowGeneralSources: allowGeneralSources,
	}
}

// Decide evaluates the hits against the classification and returns the
// grounding decision. It never panics: any internal failure resolves to a
// rejection. Sources in the returned decision are non-empty exactly when
// UseDocuments is true.
func (g *Gate) Decide(query string, c QueryClassification, hits []ScoredHit, mode Mode) (decision EvidenceDecision) {
	defer func() {
		if r := recover(); r != nil {
			decision = EvidenceDecision{
				UseDocuments: false,
				Reason:       fmt.Sprintf("%s: %v", ReasonInternalError, r),
				QueryType:    c.QueryType,
				DocIntent:    c.DocIntent,
			}
		}
	}()

	high, low := g.thresholds(mode)
	docIntent := c.DocIntent
	if mode == ModeSummarize || mode == ModeExtract {
		docIntent = true
	}

	reject := func(reason string) EvidenceDecision {
		return EvidenceDecision{Reason: reason, QueryType: c.QueryType, DocIntent: docIntent}
	}
	accept := func(reason string, sources []ScoredHit) EvidenceDecision {
		if len(sources) == 0 {
			return reject(reason + "_EMPTY")
		}
		return EvidenceDecision{
			UseDocuments: true,
			Sources:      sources,
			Reason:       reason,
			QueryType:    c.QueryType,
			DocIntent:    docIntent,
		}
	}

	if len(hits) == 0 {
		return reject(ReasonNoHits)
	}

	metrics := make([]EvidenceMetrics, len(hits))
	for i, h := range hits {
		metrics[i] = ComputeEvidence(query, c, h)
	}

	top, avg, topOverlap := summarizeEvidence(metrics)

	switch c.QueryType {
	case QueryTypeChitchat, QueryTypeDefinition, QueryTypeGeneralMath, QueryTypeGeneralKnowledge:
		if !docIntent {
			if g.allowGeneralSources && top >= high {
				return accept(ReasonGeneralQueryWithSources, filterByEvidence(hits, metrics, low))
			}
			return reject(ReasonGeneralQueryNoSources)
		}
	}

	if c.IsVeryShort && !docIntent && c.QueryType != QueryTypeQA {
		return reject(ReasonVeryShortQuery)
	}

	if docIntent {
		if c.QueryType == QueryTypeLookup && top < low {
			// A weak lookup match forces a "not found" answer instead of
			// an irrelevant citation.
			return reject(ReasonLookupLowEvidence)
		}
		if top >= high {
			return accept(ReasonDocIntentHighEvidence, filterByEvidence(hits, metrics, low))
		}
		if len(hits) >= g.minHits && avg >= low && topOverlap >= g.minOverlap {
			return accept(ReasonDocIntentModerate, filterByEvidence(hits, metrics, low))
		}
		return reject(ReasonDocIntentLowEvidence)
	}

	if top >= high {
		return accept(ReasonQAHighEvidence, filterByEvidence(hits, metrics, low))
	}
	return reject(ReasonQALowEvidence)
}

// thresholds returns the effective high/low cutoffs for a mode.
func (g *Gate) thresholds(mode Mode) (high, low float64) {
	high, low = g.evidenceHigh, g.evidenceLow
	if mode == ModeSummarize || mode == ModeExtract {
		high *= modeThresholdScale
		low *= modeThresholdScale
	}
	return high, low
}

// Thresholds exposes the effective cutoffs for stats reporting.
func (g *Gate) Thresholds(mode Mode) (high, low float64) {
	return g.thresholds(mode)
}

// ComputeEvidence derives the corroboration metrics for one hit: the vector
// score plus bonuses for query-term overlap, matching numbers, and matching
// named entities, minus a penalty for generic queries with no keywords.
func ComputeEvidence(query string, c QueryClassification, hit ScoredHit) EvidenceMetrics {
	m := EvidenceMetrics{VectorScore: hit.VectorScore}

	chunkTokens := make(map[string]struct{})
	for _, t := range tokenize(hit.Text) {
		chunkTokens[t] = struct{}{}
	}

	for _, kw := range c.Keywords {
		if _, ok := chunkTokens[kw]; ok {
			m.TermOverlap++
		}
	}

	score := hit.VectorScore
	overlapBonus := float64(m.TermOverlap) * termOverlapBonusStep
	if overlapBonus > termOverlapBonusMax {
		overlapBonus = termOverlapBonusMax
	}
	score += overlapBonus

	for _, num := range extractNumbers(query) {
		if strings.Contains(hit.Text, num) {
			m.HasNumberMatch = true
			score += numberMatchBonus
			break
		}
	}

	lowerText := strings.ToLower(hit.Text)
	for _, ent := range extractEntities(query) {
		if strings.Contains(lowerText, strings.ToLower(ent)) {
			m.HasEntityMatch = true
			score += entityMatchBonus
			break
		}
	}

	if len(c.Keywords) == 0 {
		score -= genericQueryPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	m.EvidenceScore = score
	return m
}

func summarizeEvidence(metrics []EvidenceMetrics) (top, avg float64, topOverlap int) {
	sum := 0.0
	for _, m := range metrics {
		sum += m.EvidenceScore
		if m.EvidenceScore > top {
			top = m.EvidenceScore
		}
		if m.TermOverlap > topOverlap {
			topOverlap = m.TermOverlap
		}
	}
	if len(metrics) > 0 {
		avg = sum / float64(len(metrics))
	}
	return top, avg, topOverlap
}

// filterByEvidence keeps hits whose evidence score clears the low threshold,
// deduplicated by (document_id, chunk_index). The top hit is always kept so
// an accepted decision never comes back without sources.
func filterByEvidence(hits []ScoredHit, metrics []EvidenceMetrics, low float64) []ScoredHit {
	var out []ScoredHit
	seen := make(map[string]struct{})
	bestIdx, best := -1, -1.0
	for i, m := range metrics {
		if m.EvidenceScore > best {
			best, bestIdx = m.EvidenceScore, i
		}
	}
	for i, h := range hits {
		if metrics[i].EvidenceScore < low && i != bestIdx {
			continue
		}
		if _, dup := seen[hitKey(h)]; dup {
			continue
		}
		seen[hitKey(h)] = struct{}{}
		out = append(out, h)
	}
	return out
}
