package indexer

import "sort"

// ChunkStats aggregates per-document chunking numbers for observability.
type ChunkStats struct {
	TotalWords     int            `json:"total_words"`
	TotalTokens    int            `json:"total_tokens"`
	AvgWords       float64        `json:"avg_words"`
	MinWords       int            `json:"min_words"`
	MaxWords       int            `json:"max_words"`
	AvgTokens      float64        `json:"avg_tokens"`
	MinTokens      int            `json:"min_tokens"`
	MaxTokens      int            `json:"max_tokens"`
	P95Tokens      int            `json:"p95_tokens"`
	TextTypeCounts map[string]int `json:"text_type_counts"`
	UniqueHashes   int            `json:"unique_hashes"`
}

// ComputeChunkStats summarizes a chunk list. UniqueHashes below the chunk
// count means duplicated content shares cached embeddings.
func ComputeChunkStats(chunks []Chunk) ChunkStats {
	stats := ChunkStats{TextTypeCounts: map[string]int{}}
	if len(chunks) == 0 {
		return stats
	}

	hashes := make(map[string]struct{}, len(chunks))
	tokens := make([]int, 0, len(chunks))
	stats.MinWords = chunks[0].WordCount
	stats.MinTokens = chunks[0].TokenEstimate
	for _, c := range chunks {
		stats.TotalWords += c.WordCount
		stats.TotalTokens += c.TokenEstimate
		if c.WordCount < stats.MinWords {
			stats.MinWords = c.WordCount
		}
		if c.WordCount > stats.MaxWords {
			stats.MaxWords = c.WordCount
		}
		if c.TokenEstimate < stats.MinTokens {
			stats.MinTokens = c.TokenEstimate
		}
		if c.TokenEstimate > stats.MaxTokens {
			stats.MaxTokens = c.TokenEstimate
		}
		stats.TextTypeCounts[string(c.TextType)]++
		hashes[c.DedupHash] = struct{}{}
		tokens = append(tokens, c.TokenEstimate)
	}
	stats.AvgWords = float64(stats.TotalWords) / float64(len(chunks))
	stats.AvgTokens = float64(stats.TotalTokens) / float64(len(chunks))
	stats.P95Tokens = percentile(tokens, 0.95)
	stats.UniqueHashes = len(hashes)
	return stats
}

// percentile returns the nearest-rank p-th percentile of values.
func percentile(values []int, p float64) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
