package rag

import "math"

// BM25 constants, standard Okapi parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// HybridScorer blends normalized vector similarity with a BM25 keyword score
// over the current hit batch.
type HybridScorer struct {
	vectorWeight float64
}

// NewHybridScorer creates a scorer with the given vector weight in [0,1].
func NewHybridScorer(vectorWeight float64) *HybridScorer {
	return &HybridScorer{vectorWeight: vectorWeight}
}

// Score fills in HybridScore for every hit, in place, and re-sorts is left to
// the caller. With zero keywords the hybrid score degenerates to the vector
// score alone.
func (s *HybridScorer) Score(hits []ScoredHit, keywords []string) {
	if len(hits) == 0 {
		return
	}
	if len(keywords) == 0 {
		for i := range hits {
			hits[i].HybridScore = hits[i].VectorScore
		}
		return
	}

	bm25 := bm25Scores(hits, keywords)

	vecNorm := minMaxNormalize(vectorScores(hits))
	bm25Norm := minMaxNormalize(bm25)

	for i := range hits {
		hits[i].HybridScore = s.vectorWeight*vecNorm[i] + (1-s.vectorWeight)*bm25Norm[i]
	}
}

// bm25Scores computes Okapi BM25 for each hit against the query keywords.
// Document length is normalized against the batch's average chunk length, and
// IDF is computed over the batch as the corpus.
func bm25Scores(hits []ScoredHit, keywords []string) []float64 {
	n := len(hits)
	docs := make([][]string, n)
	totalLen := 0
	for i, h := range hits {
		docs[i] = tokenize(h.Text)
		totalLen += len(docs[i])
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		return make([]float64, n)
	}

	// Document frequency per keyword.
	df := make(map[string]int, len(keywords))
	termFreqs := make([]map[string]int, n)
	for i, doc := range docs {
		tf := make(map[string]int)
		for _, t := range doc {
			tf[t]++
		}
		termFreqs[i] = tf
		for _, kw := range keywords {
			if tf[kw] > 0 {
				df[kw]++
			}
		}
	}

	scores := make([]float64, n)
	for _, kw := range keywords {
		// Okapi IDF with the +1 inside the log to keep it non-negative.
		idf := math.Log(1 + (float64(n)-float64(df[kw])+0.5)/(float64(df[kw])+0.5))
		for i := range hits {
			tf := float64(termFreqs[i][kw])
			if tf == 0 {
				continue
			}
			lenNorm := 1 - bm25B + bm25B*float64(len(docs[i]))/avgLen
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*lenNorm)
		}
	}
	return scores
}

func vectorScores(hits []ScoredHit) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.VectorScore
	}
	return out
}

// minMaxNormalize scales values to [0,1]. A constant slice maps to all 1s so
// a batch of equal scores is not zeroed out.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(values))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
