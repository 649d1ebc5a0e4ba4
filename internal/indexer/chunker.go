package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"docwise-ai/internal/config"
)

// tokensPerRune approximates token counts (4 chars per token).
const tokensPerRune = 4.0

var (
	listMarkerRe   = regexp.MustCompile(`^([-*+]|\d+[.)])$`)
	numberedItemRe = regexp.MustCompile(`^\d+[.)]`)
)

// Chunker splits normalized document text into overlapping word-window
// chunks, preferring splits near semantic boundaries (markdown headings,
// blank-line paragraph breaks, list markers). Identical input and parameters
// always yield byte-identical chunks.
type Chunker struct {
	targetWords  int
	overlapWords int
	minWords     int
	maxWords     int
}

// NewChunker creates a chunker using the configured window parameters.
func NewChunker(cfg *config.Config) *Chunker {
	return &Chunker{
		targetWords:  cfg.ChunkTargetWords,
		overlapWords: cfg.ChunkOverlapWords,
		minWords:     cfg.ChunkMinWords,
		maxWords:     cfg.ChunkMaxWords,
	}
}

// word is a whitespace-separated token plus enough layout information to
// reconstruct line structure and to mark semantic boundaries.
type word struct {
	text string
	// newlines preceding this word in the source (capped at 2).
	newlines int
	// boundary marks the first word of a heading, a list item, or a
	// paragraph that follows a blank line.
	boundary bool
}

// Chunk splits text into ordered chunks. Empty or whitespace-only input
// returns an empty slice.
func (c *Chunker) Chunk(text string) []Chunk {
	words := splitWords(text)
	if len(words) == 0 {
		return []Chunk{}
	}

	windows := c.slideWindows(words)
	windows = c.mergeSmall(words, windows)

	chunks := make([]Chunk, 0, len(windows))
	for _, w := range windows {
		chunkText := joinWords(words[w.start:w.end])
		for _, piece := range c.splitLarge(chunkText) {
			chunks = append(chunks, newChunk(len(chunks), piece))
		}
	}
	return chunks
}

type window struct {
	start, end int
}

// slideWindows slides a targetWords window over the word list, stepping back
// overlapWords each time. When a semantic boundary falls inside the trailing
// overlap region of a window, the window ends there instead.
func (c *Chunker) slideWindows(words []word) []window {
	var windows []window
	start := 0
	for start < len(words) {
		end := start + c.targetWords
		if end >= len(words) {
			windows = append(windows, window{start: start, end: len(words)})
			break
		}

		// Prefer ending at a boundary within the trailing overlap span,
		// as long as the window keeps at least minWords.
		lookback := c.overlapWords
		if lookback > 0 {
			for b := end; b > end-lookback && b > start+c.minWords; b-- {
				if words[b].boundary {
					end = b
					break
				}
			}
		}

		windows = append(windows, window{start: start, end: end})

		next := end - c.overlapWords
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}

// mergeSmall merges windows below minWords into the following window when
// the merge stays under maxWords. A trailing small window merges backward.
func (c *Chunker) mergeSmall(words []word, windows []window) []window {
	if len(windows) < 2 {
		return windows
	}

	result := make([]window, 0, len(windows))
	i := 0
	for i < len(windows) {
		cur := windows[i]
		for i+1 < len(windows) && cur.end-cur.start < c.minWords {
			next := windows[i+1]
			if next.end-cur.start > c.maxWords {
				break
			}
			cur.end = next.end
			i++
		}
		result = append(result, cur)
		i++
	}

	// Trailing window: merge backward if still too small.
	if n := len(result); n >= 2 {
		last := result[n-1]
		if last.end-last.start < c.minWords {
			prev := result[n-2]
			if last.end-prev.start <= c.maxWords {
				result[n-2].end = last.end
				result = result[:n-1]
			}
		}
	}
	return result
}

// splitLarge splits chunk text exceeding maxWords at sentence boundaries.
func (c *Chunker) splitLarge(text string) []string {
	if len(strings.Fields(text)) <= c.maxWords {
		return []string{text}
	}

	sentences := splitSentences(text)
	var pieces []string
	var current strings.Builder
	currentWords := 0
	for _, s := range sentences {
		sw := len(strings.Fields(s))
		if currentWords > 0 && currentWords+sw > c.maxWords {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
			currentWords = 0
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
		currentWords += sw
	}
	if current.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}
	if len(pieces) == 0 {
		return []string{text}
	}
	return pieces
}

var sentenceEndRe = regexp.MustCompile(`([.!?]["')\]]?)(\s+)`)

// splitSentences splits text on sentence-ending punctuation followed by
// whitespace. Text without terminal punctuation comes back as one sentence.
func splitSentences(text string) []string {
	marked := sentenceEndRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func newChunk(index int, text string) Chunk {
	return Chunk{
		Index:         index,
		Text:          text,
		WordCount:     len(strings.Fields(text)),
		TokenEstimate: EstimateTokens(text),
		TextType:      classifyText(text),
		DedupHash:     DedupHash(text),
	}
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	est := int(float64(runes)/tokensPerRune + 0.5)
	if est == 0 && runes > 0 {
		est = 1
	}
	return est
}

// DedupHash returns the SHA-256 hex digest of the normalized (lowercased,
// whitespace-collapsed) text. Identical content across documents hashes to
// the same value so cached embeddings can be shared.
func DedupHash(text string) string {
	normalized := NormalizeText(text)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases text and collapses all whitespace runs to a
// single space.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// classifyText classifies chunk structure: table when at least 3 pipe
// separators appear, list on bullet/numbered line starts, heading on a
// leading '#', paragraph otherwise.
func classifyText(text string) TextType {
	if strings.Count(text, "|") >= 3 {
		return TextTypeTable
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") ||
			strings.HasPrefix(trimmed, "+ ") || numberedItemRe.MatchString(trimmed) {
			return TextTypeList
		}
	}
	if strings.HasPrefix(strings.TrimSpace(text), "#") {
		return TextTypeHeading
	}
	return TextTypeParagraph
}

// splitWords tokenizes text into words annotated with line layout and
// semantic boundary flags.
func splitWords(text string) []word {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var words []word
	pendingNewlines := 0
	blankBefore := false

	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			pendingNewlines++
			blankBefore = true
			continue
		}

		isHeading := strings.HasPrefix(fields[0], "#")
		isList := listMarkerRe.MatchString(fields[0]) || numberedItemRe.MatchString(fields[0])

		for i, f := range fields {
			w := word{text: f}
			if len(words) > 0 {
				if i == 0 {
					w.newlines = pendingNewlines + 1
					if w.newlines > 2 {
						w.newlines = 2
					}
					w.boundary = isHeading || isList || blankBefore
				}
			}
			words = append(words, w)
		}
		pendingNewlines = 0
		blankBefore = false
	}
	return words
}

// joinWords reconstructs chunk text, preserving line breaks and paragraph
// separation so text type classification still sees the layout.
func joinWords(words []word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			if w.newlines > 0 {
				b.WriteString(strings.Repeat("\n", w.newlines))
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(w.text)
	}
	return b.String()
}
