package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ driven.DeliveryStore = (*DeliveryStore)(nil)

// DeliveryStore implements driven.DeliveryStore with one string key per
// delivery id. Redis TTLs bound the dedup window, so expired ids vanish
// without a sweeper.
type DeliveryStore struct {
	client *redis.Client
	prefix string
}

// NewDeliveryStore creates a store writing under "<namespace>:delivery:".
func NewDeliveryStore(client *redis.Client, namespace string) *DeliveryStore {
	if namespace == "" {
		namespace = DefaultPrefix
	}
	return &DeliveryStore{client: client, prefix: namespace + ":delivery:"}
}

// Claim uses SETNX so exactly one caller wins a delivery id per window.
func (s *DeliveryStore) Claim(ctx context.Context, deliveryID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+deliveryID, string(domain.DeliveryReceived), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", deliveryID, err)
	}
	return ok, nil
}

// SetState overwrites the state only if the key still exists, keeping its TTL.
func (s *DeliveryStore) SetState(ctx context.Context, deliveryID string, state domain.DeliveryState) error {
	err := s.client.SetArgs(ctx, s.prefix+deliveryID, string(state), redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set delivery %s state: %w", deliveryID, err)
	}
	return nil
}

// State returns the stored state of a delivery.
func (s *DeliveryStore) State(ctx context.Context, deliveryID string) (domain.DeliveryState, error) {
	val, err := s.client.Get(ctx, s.prefix+deliveryID).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get delivery %s: %w", deliveryID, err)
	}
	return domain.DeliveryState(val), nil
}

// Release deletes the delivery key.
func (s *DeliveryStore) Release(ctx context.Context, deliveryID string) error {
	if err := s.client.Del(ctx, s.prefix+deliveryID).Err(); err != nil {
		return fmt.Errorf("release delivery %s: %w", deliveryID, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (s *DeliveryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
