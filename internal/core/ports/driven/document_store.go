package driven

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// ListSummaries returns catalog rows with chunk counts aggregated from
	// the chunk store, ordered by last update descending then ID.
	ListSummaries(ctx context.Context) ([]*domain.DocumentSummary, error)

	// Count returns total document count
	Count(ctx context.Context) (int, error)

	// Ping checks if the store backend is healthy
	Ping(ctx context.Context) error
}

// ChunkStore handles chunk persistence (PostgreSQL)
type ChunkStore interface {
	// SaveBatch saves multiple chunks in a transaction, overwriting by ID
	SaveBatch(ctx context.Context, chunks []*domain.Chunk) error

	// GetByDocument retrieves all chunks for a document ordered by index
	GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)

	// DeleteBatch deletes multiple chunks by ID
	DeleteBatch(ctx context.Context, ids []string) error

	// DeleteByDocument deletes all chunks for a document
	DeleteByDocument(ctx context.Context, documentID string) error
}
