package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLock_OwnerIDUnique(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client, "")
	lock2 := NewLock(client, "")
	if lock1.OwnerID() == "" {
		t.Fatal("expected non-empty owner ID")
	}
	if lock1.OwnerID() == lock2.OwnerID() {
		t.Errorf("expected unique owner IDs, got same: %s", lock1.OwnerID())
	}
}

func TestLock_KeyNamespace(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client, "acme")
	if _, err := lock.Acquire(ctx, "ingest:retention", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !mr.Exists("acme:lock:ingest:retention") {
		t.Errorf("expected key acme:lock:ingest:retention, have %v", mr.Keys())
	}
}

func TestLock_AcquireExclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client, "")
	lock2 := NewLock(client, "")

	acquired, err := lock1.Acquire(ctx, "scheduler", 10*time.Second)
	if err != nil || !acquired {
		t.Fatalf("first Acquire = %v, %v", acquired, err)
	}

	// Held locks are not reentrant, even for the same owner
	for name, l := range map[string]*Lock{"same owner": lock1, "other owner": lock2} {
		acquired, err := l.Acquire(ctx, "scheduler", 10*time.Second)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if acquired {
			t.Errorf("%s: acquired a held lock", name)
		}
	}

	// Different names are independent
	acquired, err = lock2.Acquire(ctx, "ingest:doc", 10*time.Second)
	if err != nil || !acquired {
		t.Errorf("Acquire(other name) = %v, %v", acquired, err)
	}
}

func TestLock_ExpiresWithTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client, "")
	lock2 := NewLock(client, "")

	_, _ = lock1.Acquire(ctx, "scheduler", time.Second)
	mr.FastForward(2 * time.Second)

	acquired, err := lock2.Acquire(ctx, "scheduler", time.Second)
	if err != nil || !acquired {
		t.Errorf("Acquire after expiry = %v, %v", acquired, err)
	}
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	owner := NewLock(client, "")
	other := NewLock(client, "")

	_, _ = owner.Acquire(ctx, "scheduler", 10*time.Second)

	if err := other.Release(ctx, "scheduler"); err != nil {
		t.Fatalf("Release by other: %v", err)
	}
	if acquired, _ := other.Acquire(ctx, "scheduler", 10*time.Second); acquired {
		t.Fatal("lock released by a non-owner")
	}

	if err := owner.Release(ctx, "scheduler"); err != nil {
		t.Fatalf("Release by owner: %v", err)
	}
	if acquired, _ := other.Acquire(ctx, "scheduler", 10*time.Second); !acquired {
		t.Error("expected lock to be free after owner release")
	}

	// Releasing an unheld lock is not an error
	if err := owner.Release(ctx, "never-held"); err != nil {
		t.Errorf("Release(unheld) = %v", err)
	}
}

func TestLock_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	owner := NewLock(client, "")
	other := NewLock(client, "")

	_, _ = owner.Acquire(ctx, "scheduler", time.Second)

	if err := other.Extend(ctx, "scheduler", time.Minute); err == nil {
		t.Error("expected error extending a lock held by someone else")
	}
	if err := owner.Extend(ctx, "scheduler", time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if ttl := mr.TTL("nexus:lock:scheduler"); ttl < 30*time.Second {
		t.Errorf("TTL after extend = %v", ttl)
	}
	if err := owner.Extend(ctx, "missing", time.Minute); err == nil {
		t.Error("expected error extending an unheld lock")
	}
}

func TestLock_Ping(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client, "")

	if err := lock.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	if err := lock.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail after server shutdown")
	}
}
