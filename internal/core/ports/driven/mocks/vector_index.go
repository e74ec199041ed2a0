package mocks

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*MockVectorIndex)(nil)

// MockVectorIndex is a brute-force in-memory VectorIndex for testing.
type MockVectorIndex struct {
	mu      sync.RWMutex
	records map[string]driven.VectorRecord
	upserts int

	// Custom behavior hooks (optional)
	UpsertFn func(records []driven.VectorRecord) error
	SearchFn func(vector []float32, k int) ([]driven.VectorMatch, error)
}

// NewMockVectorIndex creates an empty index.
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{records: make(map[string]driven.VectorRecord)}
}

func (m *MockVectorIndex) Upsert(ctx context.Context, records []driven.VectorRecord) error {
	if m.UpsertFn != nil {
		if err := m.UpsertFn(records); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
		m.upserts++
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]driven.VectorMatch, error) {
	if m.SearchFn != nil {
		return m.SearchFn(vector, k)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]driven.VectorMatch, 0, len(m.records))
	for _, r := range m.records {
		rec := r
		rec.Vector = nil
		matches = append(matches, driven.VectorMatch{Record: rec, Score: cosine(vector, r.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MockVectorIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *MockVectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.DocumentID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockVectorIndex) Close() error {
	return nil
}

// Helper methods for testing

// Len returns the number of stored records.
func (m *MockVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Record returns a stored record by ID.
func (m *MockVectorIndex) Record(id string) (driven.VectorRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

// Upserts returns the total number of records written, including overwrites.
func (m *MockVectorIndex) Upserts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
