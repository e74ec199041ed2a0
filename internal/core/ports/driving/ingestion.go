package driving

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// IngestionService turns stored documents into indexed chunks
type IngestionService interface {
	// Ingest runs the full pipeline for the object at source and returns
	// the document in its final status (INDEXED, PARTIAL or FAILED).
	Ingest(ctx context.Context, source string) (*domain.Document, error)

	// Submit enqueues an ingestion task for source and returns the task ID
	Submit(ctx context.Context, source string) (string, error)
}
