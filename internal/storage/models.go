package storage

import "time"

// Source identifies where an indexed document came from.
const (
	SourceDocument = "document"
	SourceEmail    = "email"
)

// Document represents an indexed document or email.
type Document struct {
	ID        string // UUID
	Source    string // "document" or "email"
	Filename  string
	Title     string
	Subject   string // email subject, empty for documents
	Sender    string // email sender, empty for documents
	Hash      string // SHA-256 hex of the raw content, used to skip unchanged re-indexing
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkRecord is a persisted chunk row; its ID doubles as the vector store
// point ID.
type ChunkRecord struct {
	ID            string // UUID (same as the Qdrant point ID)
	DocumentID    string
	ChunkIndex    int
	Text          string
	TextType      string
	WordCount     int
	TokenEstimate int
	DedupHash     string
}
