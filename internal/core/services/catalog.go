package services

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.CatalogService = (*CatalogService)(nil)

// CatalogService lists what has been ingested.
type CatalogService struct {
	documents driven.DocumentStore
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(documents driven.DocumentStore) *CatalogService {
	return &CatalogService{documents: documents}
}

// ListDocuments returns one summary per document, most recently updated first.
func (s *CatalogService) ListDocuments(ctx context.Context) ([]*domain.DocumentSummary, error) {
	summaries, err := s.documents.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []*domain.DocumentSummary{}
	}
	return summaries, nil
}
