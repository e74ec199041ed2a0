package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps documents in a map. Catalog chunk counts are
// aggregated from the paired ChunkStore.
type DocumentStore struct {
	mu     sync.RWMutex
	docs   map[string]*domain.Document
	chunks *ChunkStore
}

// NewDocumentStore creates a store that counts chunks in chunks.
func NewDocumentStore(chunks *ChunkStore) *DocumentStore {
	return &DocumentStore{docs: make(map[string]*domain.Document), chunks: chunks}
}

func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *DocumentStore) ListSummaries(ctx context.Context) ([]*domain.DocumentSummary, error) {
	var counts map[string]int
	if s.chunks != nil {
		counts = s.chunks.countByDocument()
	}

	s.mu.RLock()
	summaries := make([]*domain.DocumentSummary, 0, len(s.docs))
	for _, doc := range s.docs {
		summaries = append(summaries, &domain.DocumentSummary{
			ID:          doc.ID,
			Title:       doc.Title,
			ChunkCount:  counts[doc.ID],
			PageCount:   doc.PageCount,
			Status:      doc.Status,
			LastUpdated: doc.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	SortSummaries(summaries)
	return summaries, nil
}

func (s *DocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	return nil
}

// SortSummaries orders summaries by last update descending, then ID ascending.
func SortSummaries(summaries []*domain.DocumentSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastUpdated.Equal(b.LastUpdated) {
			return a.LastUpdated.After(b.LastUpdated)
		}
		return a.ID < b.ID
	})
}
