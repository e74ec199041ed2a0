package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*Lock)(nil)

// Lock implements DistributedLock within one process.
// Locks expire after their TTL like the Redis implementation.
type Lock struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLock creates a new in-process lock.
func NewLock() *Lock {
	return &Lock{locks: make(map[string]time.Time)}
}

// Acquire attempts to acquire a named lock.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, exists := l.locks[name]; exists && time.Now().Before(expiry) {
		return false, nil
	}
	l.locks[name] = time.Now().Add(ttl)
	return true, nil
}

// Release releases a named lock. Safe to call if the lock is not held.
func (l *Lock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, name)
	return nil
}

// Extend extends the TTL of a held lock.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	expiry, exists := l.locks[name]
	if !exists || time.Now().After(expiry) {
		return fmt.Errorf("lock %s not held", name)
	}
	l.locks[name] = time.Now().Add(ttl)
	return nil
}

// Ping always succeeds.
func (l *Lock) Ping(ctx context.Context) error {
	return nil
}

// IsHeld reports whether a lock is currently held.
func (l *Lock) IsHeld(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	expiry, exists := l.locks[name]
	return exists && time.Now().Before(expiry)
}
