package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DeliveryStore = (*DeliveryStore)(nil)

// DeliveryStore implements driven.DeliveryStore with the deliveries table.
// Expired rows are treated as absent and overwritten on the next claim.
type DeliveryStore struct {
	db *DB
}

// NewDeliveryStore creates a new DeliveryStore
func NewDeliveryStore(db *DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// Claim inserts the delivery id unless a live row already exists.
func (s *DeliveryStore) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO deliveries (id, state, expires_at)
		VALUES ($1, $2, NOW() + ($3::double precision * INTERVAL '1 millisecond'))
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			expires_at = EXCLUDED.expires_at
		WHERE deliveries.expires_at < NOW()
	`
	result, err := s.db.ExecContext(ctx, query, deliveryID, domain.DeliveryReceived, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// SetState updates a live delivery, keeping its expiry.
func (s *DeliveryStore) SetState(ctx context.Context, deliveryID string, state domain.DeliveryState) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET state = $2 WHERE id = $1 AND expires_at >= NOW()`,
		deliveryID, state)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// State returns the state of a live delivery.
func (s *DeliveryStore) State(ctx context.Context, deliveryID string) (domain.DeliveryState, error) {
	var state domain.DeliveryState
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM deliveries WHERE id = $1 AND expires_at >= NOW()`,
		deliveryID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return state, err
}

// Release deletes the delivery row.
func (s *DeliveryStore) Release(ctx context.Context, deliveryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE id = $1`, deliveryID)
	return err
}

// Purge removes expired rows and reports how many were deleted.
func (s *DeliveryStore) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM deliveries WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ping checks database connectivity
func (s *DeliveryStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
