package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// DeliveryStore tracks webhook deliveries inside the dedup window.
// Entries expire after their TTL; an expired id may be claimed again.
type DeliveryStore interface {
	// Claim records a delivery id in state RECEIVED.
	// Returns false if the id is already tracked.
	Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error)

	// SetState moves a tracked delivery to state, keeping its TTL.
	// Returns domain.ErrNotFound if the id expired or was never claimed.
	SetState(ctx context.Context, deliveryID string, state domain.DeliveryState) error

	// State returns the current state of a tracked delivery.
	State(ctx context.Context, deliveryID string) (domain.DeliveryState, error)

	// Release forgets a delivery id so a retry from the platform can be accepted.
	Release(ctx context.Context, deliveryID string) error

	// Ping checks if the store backend is healthy.
	Ping(ctx context.Context) error
}
