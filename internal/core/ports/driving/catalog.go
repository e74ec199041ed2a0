package driving

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// CatalogService lists the documents known to the system
type CatalogService interface {
	// ListDocuments returns summaries ordered by last update, newest first
	ListDocuments(ctx context.Context) ([]*domain.DocumentSummary, error)
}
