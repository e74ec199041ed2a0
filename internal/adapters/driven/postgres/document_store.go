package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore implements driven.DocumentStore using PostgreSQL
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, source, title, mime_type, page_count, checksum, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			title = EXCLUDED.title,
			mime_type = EXCLUDED.mime_type,
			page_count = EXCLUDED.page_count,
			checksum = EXCLUDED.checksum,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Source,
		doc.Title,
		doc.MimeType,
		doc.PageCount,
		doc.Checksum,
		doc.Status,
		doc.Error,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// Get retrieves a document by ID. ChunkCount is filled from the chunks table.
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `
		SELECT d.id, d.source, d.title, d.mime_type, d.page_count, d.checksum,
		       d.status, d.error, d.created_at, d.updated_at,
		       (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		FROM documents d
		WHERE d.id = $1
	`

	var doc domain.Document
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID,
		&doc.Source,
		&doc.Title,
		&doc.MimeType,
		&doc.PageCount,
		&doc.Checksum,
		&doc.Status,
		&doc.Error,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.ChunkCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListSummaries returns one catalog row per document
func (s *DocumentStore) ListSummaries(ctx context.Context) ([]*domain.DocumentSummary, error) {
	query := `
		SELECT d.id, d.title, COUNT(c.id), d.page_count, d.status, d.updated_at
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		GROUP BY d.id
		ORDER BY d.updated_at DESC, d.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]*domain.DocumentSummary, 0)
	for rows.Next() {
		var sum domain.DocumentSummary
		if err := rows.Scan(
			&sum.ID,
			&sum.Title,
			&sum.ChunkCount,
			&sum.PageCount,
			&sum.Status,
			&sum.LastUpdated,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

// Count returns total document count
func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// Ping checks database connectivity
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
