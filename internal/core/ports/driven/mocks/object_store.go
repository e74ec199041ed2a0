package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// MockObjectStore holds objects in memory.
type MockObjectStore struct {
	mu      sync.RWMutex
	objects map[string]*driven.Object
}

// NewMockObjectStore creates an empty store.
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string]*driven.Object)}
}

// Put stores data under key.
func (m *MockObjectStore) Put(key, mimeType string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &driven.Object{Key: key, Data: data, MimeType: mimeType, ModTime: time.Now()}
}

func (m *MockObjectStore) Get(ctx context.Context, key string) (*driven.Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *obj
	return &copied, nil
}

func (m *MockObjectStore) List(ctx context.Context) ([]driven.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]driven.ObjectInfo, 0, len(m.objects))
	for _, obj := range m.objects {
		infos = append(infos, driven.ObjectInfo{Key: obj.Key, Size: int64(len(obj.Data)), ModTime: obj.ModTime})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *MockObjectStore) Ping(ctx context.Context) error {
	return nil
}
