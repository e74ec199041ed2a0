package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.DeliveryStore = (*DeliveryStore)(nil)

type deliveryEntry struct {
	state  domain.DeliveryState
	expiry time.Time
}

// DeliveryStore tracks webhook deliveries with per-entry expiry.
// Expired entries are evicted lazily on access and by Sweep.
type DeliveryStore struct {
	mu      sync.Mutex
	entries map[string]deliveryEntry
	now     func() time.Time
}

// NewDeliveryStore creates an empty delivery store.
func NewDeliveryStore() *DeliveryStore {
	return &DeliveryStore{entries: make(map[string]deliveryEntry), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *DeliveryStore) WithClock(now func() time.Time) *DeliveryStore {
	s.now = now
	return s
}

func (s *DeliveryStore) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[deliveryID]; ok && now.Before(e.expiry) {
		return false, nil
	}
	s.entries[deliveryID] = deliveryEntry{state: domain.DeliveryReceived, expiry: now.Add(ttl)}
	return true, nil
}

func (s *DeliveryStore) SetState(ctx context.Context, deliveryID string, state domain.DeliveryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(deliveryID)
	if !ok {
		return domain.ErrNotFound
	}
	e.state = state
	s.entries[deliveryID] = e
	return nil
}

func (s *DeliveryStore) State(ctx context.Context, deliveryID string) (domain.DeliveryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(deliveryID)
	if !ok {
		return "", domain.ErrNotFound
	}
	return e.state, nil
}

func (s *DeliveryStore) Release(ctx context.Context, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, deliveryID)
	return nil
}

func (s *DeliveryStore) Ping(ctx context.Context) error {
	return nil
}

// Sweep evicts expired entries and returns how many were removed.
func (s *DeliveryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expiry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// live returns an unexpired entry. Callers hold mu.
func (s *DeliveryStore) live(deliveryID string) (deliveryEntry, bool) {
	e, ok := s.entries[deliveryID]
	if !ok {
		return e, false
	}
	if !s.now().Before(e.expiry) {
		delete(s.entries, deliveryID)
		return e, false
	}
	return e, true
}
