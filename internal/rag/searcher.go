package rag

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"docwise-ai/internal/cache"
	"docwise-ai/internal/config"
	"docwise-ai/internal/contextutil"
	"docwise-ai/internal/vectorstore"
)

// embeddingHashPrefix is how many leading vector components feed the query
// cache key. Enough to distinguish queries, cheap to hash.
const embeddingHashPrefix = 32

// SearchResult carries the merged hits plus cache bookkeeping.
type SearchResult struct {
	Hits     []ScoredHit
	CacheHit bool
}

// Searcher runs two-stage (priority then global) vector retrieval with score
// normalization and a short-TTL result cache.
type Searcher struct {
	store      vectorstore.VectorStore
	collection string
	topK       int
	minScore   float64

	priorityHigh    float64
	priorityLow     float64
	priorityMinHits int

	queryCache *cache.Cache
}

// NewSearcher creates a searcher over the given vector store.
func NewSearcher(store vectorstore.VectorStore, cfg *config.Config) *Searcher {
	return &Searcher{
		store:           store,
		collection:      cfg.QdrantCollection,
		topK:            cfg.SearchTopK,
		minScore:        cfg.SearchMinScore,
		priorityHigh:    cfg.PriorityHigh,
		priorityLow:     cfg.PriorityLow,
		priorityMinHits: cfg.PriorityMinHits,
		queryCache:      cache.New(cfg.QueryCacheSize, cfg.QueryCacheTTL),
	}
}

// Search retrieves the topK best chunks for the query vector. When
// priorityDocIDs is non-empty the search is restricted to them first; if the
// priority results are insufficient it falls back to an unrestricted search
// and merges, priority hits first, deduplicated by (document_id, chunk_index).
// candidateDocIDs, when non-empty, bounds the global stage.
func (s *Searcher) Search(ctx context.Context, queryVec []float32, candidateDocIDs, priorityDocIDs []string) (*SearchResult, error) {
	key := s.cacheKey(queryVec, candidateDocIDs, priorityDocIDs)
	if cached, ok := s.queryCache.Get(key); ok {
		hits := cached.([]ScoredHit)
		return &SearchResult{Hits: cloneHits(hits), CacheHit: true}, nil
	}

	logger := contextutil.LoggerFromContext(ctx)

	var hits []ScoredHit
	if len(priorityDocIDs) > 0 {
		priorityHits, err := s.searchOnce(ctx, queryVec, priorityDocIDs, ScopePriority)
		if err != nil {
			return nil, fmt.Errorf("priority search failed: %w", err)
		}
		if s.prioritySufficient(priorityHits) {
			hits = priorityHits
		} else {
			logger.Debug("priority results insufficient, falling back to global search",
				slog.Int("priority_hits", len(priorityHits)))
			globalHits, err := s.searchOnce(ctx, queryVec, candidateDocIDs, ScopeGlobal)
			if err != nil {
				return nil, fmt.Errorf("global search failed: %w", err)
			}
			hits = mergeHits(priorityHits, globalHits, s.topK)
		}
	} else {
		var err error
		hits, err = s.searchOnce(ctx, queryVec, candidateDocIDs, ScopeGlobal)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
	}

	s.queryCache.Set(key, cloneHits(hits), 0)
	return &SearchResult{Hits: hits}, nil
}

// searchOnce runs a single vector store query and converts raw hits into
// scored hits, dropping anything below minScore.
func (s *Searcher) searchOnce(ctx context.Context, queryVec []float32, docIDs []string, scope Scope) ([]ScoredHit, error) {
	raw, err := s.store.Search(ctx, s.collection, queryVec, s.topK, vectorstore.Filter{
		DocumentIDs: docIDs,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredHit, 0, len(raw))
	for _, r := range raw {
		score := normalizeDistance(r.Distance)
		if score < s.minScore {
			continue
		}
		hit := ScoredHit{
			VectorScore: score,
			Distance:    r.Distance,
			Scope:       scope,
			Meta:        r.Meta,
		}
		if v, ok := r.Meta["document_id"].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := r.Meta["chunk_index"].(int64); ok {
			hit.ChunkIndex = int(v)
		}
		if v, ok := r.Meta["text"].(string); ok {
			hit.Text = v
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].VectorScore > hits[j].VectorScore
	})
	if len(hits) > s.topK {
		hits = hits[:s.topK]
	}
	return hits, nil
}

// prioritySufficient applies the acceptance rule for priority-only results:
// top score clears priorityHigh, or enough hits average above priorityLow.
func (s *Searcher) prioritySufficient(hits []ScoredHit) bool {
	if len(hits) == 0 {
		return false
	}
	if hits[0].VectorScore >= s.priorityHigh {
		return true
	}
	if len(hits) >= s.priorityMinHits {
		sum := 0.0
		for _, h := range hits {
			sum += h.VectorScore
		}
		if sum/float64(len(hits)) >= s.priorityLow {
			return true
		}
	}
	return false
}

// mergeHits appends global hits after priority hits, skipping duplicate
// (document_id, chunk_index) pairs, and truncates to topK.
func mergeHits(priority, global []ScoredHit, topK int) []ScoredHit {
	seen := make(map[string]struct{}, len(priority))
	merged := make([]ScoredHit, 0, len(priority)+len(global))
	for _, h := range priority {
		seen[hitKey(h)] = struct{}{}
		merged = append(merged, h)
	}
	for _, h := range global {
		if _, dup := seen[hitKey(h)]; dup {
			continue
		}
		seen[hitKey(h)] = struct{}{}
		merged = append(merged, h)
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func hitKey(h ScoredHit) string {
	return fmt.Sprintf("%s:%d", h.DocumentID, h.ChunkIndex)
}

// normalizeDistance maps a distance to a [0,1] similarity score. Cosine-like
// distances up to 2 map linearly; anything larger decays as 1/(1+d).
func normalizeDistance(d float64) float64 {
	var score float64
	if d <= 2 {
		score = 1 - d/2
	} else {
		score = 1 / (1 + d)
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// cacheKey hashes the leading embedding components together with the doc ID
// sets so repeated queries skip the vector store round-trip.
func (s *Searcher) cacheKey(vec []float32, candidateDocIDs, priorityDocIDs []string) string {
	h := sha256.New()
	n := len(vec)
	if n > embeddingHashPrefix {
		n = embeddingHashPrefix
	}
	buf := make([]byte, 4)
	for _, v := range vec[:n] {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		h.Write(buf)
	}
	writeIDs := func(ids []string) {
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		h.Write([]byte(strings.Join(sorted, ",")))
		h.Write([]byte{0})
	}
	writeIDs(candidateDocIDs)
	writeIDs(priorityDocIDs)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneHits(hits []ScoredHit) []ScoredHit {
	out := make([]ScoredHit, len(hits))
	copy(out, hits)
	return out
}
