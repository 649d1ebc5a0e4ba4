package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentStore defines the interface for document metadata operations.
type DocumentStore interface {
	// Upsert inserts the document or updates it if the ID already exists.
	Upsert(ctx context.Context, doc *Document) error
	// GetByID returns a document by ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*Document, error)
	// GetByFilename returns a document by source+filename. Returns
	// ErrNotFound if missing.
	GetByFilename(ctx context.Context, source, filename string) (*Document, error)
	// Delete removes a document; its chunks cascade.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Upsert inserts the document or updates it if the ID already exists.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, source, filename, title, subject, sender, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			filename = excluded.filename,
			title = excluded.title,
			subject = excluded.subject,
			sender = excluded.sender,
			hash = excluded.hash,
			updated_at = CURRENT_TIMESTAMP`,
		doc.ID, doc.Source, doc.Filename, doc.Title, doc.Subject, doc.Sender, doc.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// GetByID returns a document by ID. Returns ErrNotFound if missing.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, filename, title, subject, sender, hash, created_at, updated_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetByFilename returns a document by source+filename. Returns ErrNotFound
// if missing.
func (r *DocumentRepo) GetByFilename(ctx context.Context, source, filename string) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, source, filename, title, subject, sender, hash, created_at, updated_at
		 FROM documents WHERE source = ? AND filename = ?`, source, filename)
	return scanDocument(row)
}

// Delete removes a document; its chunks cascade via the foreign key.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Source, &doc.Filename, &doc.Title, &doc.Subject,
		&doc.Sender, &doc.Hash, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}
