package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*LeaseLock)(nil)

// LeaseLock implements DistributedLock with rows in the locks table.
// A lock is held until released or until its lease expires, at which point
// any other holder may take it over.
type LeaseLock struct {
	db     *DB
	holder string
}

// NewLeaseLock creates a lock adapter. Locks taken by this instance are
// recorded under holder; an empty holder defaults to hostname:pid.
func NewLeaseLock(db *DB, holder string) *LeaseLock {
	if holder == "" {
		host, _ := os.Hostname()
		holder = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	return &LeaseLock{db: db, holder: holder}
}

// Acquire takes the named lock if it is free or its lease has expired.
func (l *LeaseLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO locks (name, holder, expires_at)
		VALUES ($1, $2, NOW() + ($3::double precision * INTERVAL '1 millisecond'))
		ON CONFLICT (name) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE locks.expires_at < NOW()
	`
	result, err := l.db.ExecContext(ctx, query, name, l.holder, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Release drops the lock if this instance holds it.
// Safe to call even if the lock is not held.
func (l *LeaseLock) Release(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE name = $1 AND holder = $2`, name, l.holder)
	return err
}

// Extend pushes the lease expiry forward for a lock this instance holds.
func (l *LeaseLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	query := `
		UPDATE locks SET expires_at = NOW() + ($3::double precision * INTERVAL '1 millisecond')
		WHERE name = $1 AND holder = $2
	`
	result, err := l.db.ExecContext(ctx, query, name, l.holder, ttl.Milliseconds())
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("lock not held")
	}
	return nil
}

// Ping checks database connectivity
func (l *LeaseLock) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}
