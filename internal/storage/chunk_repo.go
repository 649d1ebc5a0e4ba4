package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ChunkStore defines the interface for chunk persistence operations.
type ChunkStore interface {
	// InsertBatch inserts all chunks in a single transaction.
	InsertBatch(ctx context.Context, chunks []ChunkRecord) error
	// GetByID returns a chunk by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// ListByDocument returns all chunks of a document ordered by chunk index.
	ListByDocument(ctx context.Context, documentID string) ([]ChunkRecord, error)
	// ListIDsByDocument returns all chunk IDs of a document.
	ListIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	// DeleteByDocument removes all chunks of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts all chunks in a single transaction so a partial
// re-index never leaves a half-written document behind.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, text, text_type, word_count, token_estimate, dedup_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Text,
			c.TextType, c.WordCount, c.TokenEstimate, c.DedupHash); err != nil {
			return fmt.Errorf("failed to insert chunk %d of document %s: %w", c.ChunkIndex, c.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetByID returns a chunk by ID. Returns ErrNotFound if missing.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, document_id, chunk_index, text, text_type, word_count, token_estimate, dedup_hash
		 FROM chunks WHERE id = ?`, id)

	var c ChunkRecord
	err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.TextType,
		&c.WordCount, &c.TokenEstimate, &c.DedupHash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return &c, nil
}

// ListByDocument returns all chunks of a document ordered by chunk index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, text, text_type, word_count, token_estimate, dedup_hash
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.TextType,
			&c.WordCount, &c.TokenEstimate, &c.DedupHash); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListIDsByDocument returns all chunk IDs of a document. The IDs double as
// vector store point IDs, so this feeds stale point cleanup on re-index.
func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByDocument removes all chunks of a document.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
