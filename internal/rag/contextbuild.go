package rag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"docwise-ai/internal/indexer"
	"docwise-ai/internal/storage"
)

// snippetMaxChars caps citation snippet length.
const snippetMaxChars = 320

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding, falling back to a
// runes/4 estimate when the encoding data is unavailable (offline start).
func CountTokens(text string) int {
	tokenizerOnce.Do(func() {
		tokenizer, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if tokenizer == nil {
		return indexer.EstimateTokens(text)
	}
	return len(tokenizer.Encode(text, nil, nil))
}

// ContextBuilder renders accepted sources into a labeled context block under
// a token budget.
type ContextBuilder struct {
	budget int
}

// NewContextBuilder creates a builder with the given context token budget.
func NewContextBuilder(budget int) *ContextBuilder {
	return &ContextBuilder{budget: budget}
}

// BuiltContext is the rendered context plus which hits made it in.
type BuiltContext struct {
	Text     string
	Included []ScoredHit
	Tokens   int
}

// Build renders hits in descending hybrid-score order, each under a source
// label, appending whole chunks until the next one would exceed the budget.
// Chunks are never truncated mid-text. docs maps document IDs to their
// metadata; hits with no metadata fall back to the bare document ID.
func (b *ContextBuilder) Build(hits []ScoredHit, docs map[string]*storage.Document) BuiltContext {
	ordered := cloneHits(hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].HybridScore > ordered[j].HybridScore
	})

	var sb strings.Builder
	var included []ScoredHit
	used := 0
	for _, h := range ordered {
		block := sourceLabel(h, docs[h.DocumentID]) + "\n" + h.Text + "\n\n"
		cost := CountTokens(block)
		if used+cost > b.budget {
			// Whole chunks only; a chunk that does not fit is skipped, and
			// lower-scored smaller chunks may still use the remaining room.
			continue
		}
		sb.WriteString(block)
		included = append(included, h)
		used += cost
	}

	return BuiltContext{
		Text:     strings.TrimRight(sb.String(), "\n"),
		Included: included,
		Tokens:   used,
	}
}

// sourceLabel renders the per-chunk header: documents show name and section,
// emails show subject and sender.
func sourceLabel(h ScoredHit, doc *storage.Document) string {
	if doc != nil && doc.Source == storage.SourceEmail {
		subject := doc.Subject
		if subject == "" {
			subject = doc.Filename
		}
		if doc.Sender != "" {
			return fmt.Sprintf("[Email: %s (%s)]", subject, doc.Sender)
		}
		return fmt.Sprintf("[Email: %s]", subject)
	}

	name := h.DocumentID
	if doc != nil {
		if doc.Title != "" {
			name = doc.Title
		} else if doc.Filename != "" {
			name = doc.Filename
		}
	}
	return fmt.Sprintf("[Document: %s, Section %d]", name, h.ChunkIndex+1)
}

// Citations converts accepted hits into caller-facing citations with capped
// snippets.
func Citations(hits []ScoredHit, docs map[string]*storage.Document) []SourceCitation {
	citations := make([]SourceCitation, 0, len(hits))
	for _, h := range hits {
		c := SourceCitation{
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Score:      h.HybridScore,
			Snippet:    snippet(h.Text),
			Scope:      h.Scope,
		}
		if doc := docs[h.DocumentID]; doc != nil {
			c.Filename = doc.Filename
			c.Title = doc.Title
			if doc.Source == storage.SourceEmail && doc.Subject != "" {
				c.Title = doc.Subject
			}
		}
		citations = append(citations, c)
	}
	return citations
}

// snippet truncates text to snippetMaxChars runes at a word boundary, adding
// an ellipsis when cut.
func snippet(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= snippetMaxChars {
		return collapsed
	}
	cut := string(runes[:snippetMaxChars-1])
	if idx := strings.LastIndex(cut, " "); idx > snippetMaxChars/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
