// Package memory provides single-process implementations of the store ports.
// They back `nexus serve` without Postgres or Redis and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.ChunkStore = (*ChunkStore)(nil)

// ChunkStore keeps chunks in a map keyed by chunk ID.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*domain.Chunk
}

// NewChunkStore creates an empty chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[string]*domain.Chunk)}
}

func (s *ChunkStore) SaveBatch(ctx context.Context, chunks []*domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		copied := *c
		copied.Embedding = nil
		s.chunks[c.ID] = &copied
	}
	return nil
}

func (s *ChunkStore) GetByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			copied := *c
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result, nil
}

func (s *ChunkStore) DeleteBatch(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.chunks, id)
	}
	return nil
}

func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocumentID == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// countByDocument returns chunk counts grouped by document ID.
func (s *ChunkStore) countByDocument() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range s.chunks {
		counts[c.DocumentID]++
	}
	return counts
}
