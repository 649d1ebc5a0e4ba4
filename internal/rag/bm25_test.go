package rag

import (
	"math"
	"testing"
)

func hitsWithTexts(texts ...string) []ScoredHit {
	hits := make([]ScoredHit, len(texts))
	for i, txt := range texts {
		hits[i] = ScoredHit{
			DocumentID:  "doc-1",
			ChunkIndex:  i,
			Text:        txt,
			VectorScore: 0.5,
		}
	}
	return hits
}

func TestHybridScorer_ZeroKeywordsDegeneratesToVector(t *testing.T) {
	s := NewHybridScorer(0.7)
	hits := hitsWithTexts("warranty terms apply", "shipping details")
	hits[0].VectorScore = 0.9
	hits[1].VectorScore = 0.3

	s.Score(hits, nil)

	if hits[0].HybridScore != 0.9 || hits[1].HybridScore != 0.3 {
		t.Errorf("hybrid scores = %v, %v; want vector scores unchanged", hits[0].HybridScore, hits[1].HybridScore)
	}
}

func TestHybridScorer_KeywordMatchOutranksNonMatch(t *testing.T) {
	s := NewHybridScorer(0.7)
	hits := hitsWithTexts(
		"the warranty period is two years from purchase",
		"shipping takes three to five business days",
	)
	// Equal vector scores, so the keyword component decides.
	s.Score(hits, []string{"warranty", "period"})

	if hits[0].HybridScore <= hits[1].HybridScore {
		t.Errorf("keyword-matching chunk scored %v, non-matching %v; want strictly higher",
			hits[0].HybridScore, hits[1].HybridScore)
	}
}

func TestHybridScorer_ScoresInRange(t *testing.T) {
	s := NewHybridScorer(0.7)
	hits := hitsWithTexts(
		"warranty warranty warranty warranty",
		"completely unrelated text about gardening",
		"warranty appears once here",
	)
	hits[0].VectorScore = 0.95
	hits[1].VectorScore = 0.1
	hits[2].VectorScore = 0.4

	s.Score(hits, []string{"warranty"})

	for i, h := range hits {
		if h.HybridScore < 0 || h.HybridScore > 1 {
			t.Errorf("hit %d hybrid score %v out of [0,1]", i, h.HybridScore)
		}
	}
}

func TestHybridScorer_VectorWeightBlend(t *testing.T) {
	// With weight 1.0 the keyword side must not matter.
	s := NewHybridScorer(1.0)
	hits := hitsWithTexts("warranty terms", "other text")
	hits[0].VectorScore = 0.2
	hits[1].VectorScore = 0.8

	s.Score(hits, []string{"warranty"})

	if hits[1].HybridScore <= hits[0].HybridScore {
		t.Errorf("with full vector weight ordering must follow vector score: %v vs %v",
			hits[0].HybridScore, hits[1].HybridScore)
	}
}

func TestBM25Scores_TermFrequencySaturates(t *testing.T) {
	hits := hitsWithTexts(
		"budget",
		"budget budget budget budget budget budget budget budget",
	)
	scores := bm25Scores(hits, []string{"budget"})

	if scores[1] <= scores[0] {
		t.Errorf("higher term frequency must not score lower: %v vs %v", scores[0], scores[1])
	}
	// Saturation: eight occurrences must not score eight times one.
	if scores[1] >= scores[0]*8 {
		t.Errorf("BM25 must saturate with term frequency: %v vs %v", scores[0], scores[1])
	}
}

func TestMinMaxNormalize(t *testing.T) {
	got := minMaxNormalize([]float64{2, 4, 6})
	want := []float64{0, 0.5, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("minMaxNormalize[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	// Constant input maps to all ones, not all zeros.
	for i, v := range minMaxNormalize([]float64{3, 3, 3}) {
		if v != 1 {
			t.Errorf("constant input index %d = %v, want 1", i, v)
		}
	}
}
