package indexer

// TextType classifies the dominant structure of a chunk's text.
type TextType string

const (
	TextTypeParagraph TextType = "paragraph"
	TextTypeList      TextType = "list"
	TextTypeTable     TextType = "table"
	TextTypeHeading   TextType = "heading"
)

// Chunk represents a bounded slice of a document's text, the atomic
// retrieval unit. Chunks are immutable once produced.
type Chunk struct {
	// Index is the chunk position within the document (starts at 0).
	Index int
	// Text is the chunk text content.
	Text string
	// WordCount is the number of whitespace-separated words in Text.
	WordCount int
	// TokenEstimate approximates the token count for budget planning.
	TokenEstimate int
	// TextType classifies the chunk structure (paragraph/list/table/heading).
	TextType TextType
	// DocumentID is the parent document; set by the indexing pipeline.
	DocumentID string
	// DedupHash is a SHA-256 hash over the normalized text, shared by
	// identical content across documents so embeddings can be reused.
	DedupHash string
}
