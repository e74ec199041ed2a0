package driven

import (
	"context"
)

// VectorRecord is one chunk vector with the metadata stored beside it.
type VectorRecord struct {
	ID         string // Chunk id, stable hash of (document id, index)
	DocumentID string
	Title      string
	Text       string
	Page       int
	ChunkIndex int
	TokenCount int
	Vector     []float32
}

// VectorMatch is a ranked nearest-neighbour hit.
// Record.Vector is not populated.
type VectorMatch struct {
	Record VectorRecord
	Score  float64 // Cosine similarity
}

// VectorIndex handles vector similarity search (Qdrant, chromem)
type VectorIndex interface {
	// Upsert writes records keyed by ID; writing an existing ID overwrites it
	Upsert(ctx context.Context, records []VectorRecord) error

	// Search returns up to k nearest records, most similar first
	Search(ctx context.Context, vector []float32, k int) ([]VectorMatch, error)

	// Delete removes records by ID; unknown IDs are ignored
	Delete(ctx context.Context, ids []string) error

	// DeleteByDocument removes every record of a document
	DeleteByDocument(ctx context.Context, documentID string) error

	// HealthCheck verifies the index is available
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the index
	Close() error
}
