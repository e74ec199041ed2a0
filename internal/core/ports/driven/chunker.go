package driven

import "github.com/custodia-labs/nexus/internal/core/domain"

// Chunker splits extracted pages into indexable chunks.
type Chunker interface {
	// Chunk returns chunks for a document in index order.
	// It is deterministic for the same input.
	// Returns *domain.EmptyDocumentError when nothing survives filtering.
	Chunk(documentID string, pages []domain.Page) ([]*domain.Chunk, error)
}
