package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Dispatcher hands verified Slack events to the worker exactly once per
// dedup window. It never waits for processing.
type Dispatcher struct {
	deliveries driven.DeliveryStore
	queue      driven.TaskQueue
	ttl        time.Duration
	logger     *slog.Logger
}

// DispatcherConfig holds dependencies for Dispatcher.
type DispatcherConfig struct {
	Deliveries driven.DeliveryStore
	Queue      driven.TaskQueue
	TTL        time.Duration // Dedup window, equal to the replay window (default: 5m)
	Logger     *slog.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultReplayWindow
	}
	return &Dispatcher{
		deliveries: cfg.Deliveries,
		queue:      cfg.Queue,
		ttl:        ttl,
		logger:     logger,
	}
}

// Dispatch claims the event's delivery id and enqueues it for processing.
// The event must already be verified. A delivery id seen inside the window
// returns DispatchDuplicate without enqueueing.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.SlackEvent) (domain.DispatchOutcome, error) {
	if event == nil || event.DeliveryID == "" {
		metrics.SlackDeliveries.WithLabelValues(string(domain.DispatchRejected)).Inc()
		return domain.DispatchRejected, fmt.Errorf("%w: event has no delivery id", domain.ErrInvalidInput)
	}
	logger := d.logger.With("delivery_id", event.DeliveryID, "kind", event.Kind)

	claimed, err := d.deliveries.Claim(ctx, event.DeliveryID, d.ttl)
	if err != nil {
		return "", fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		metrics.SlackDeliveries.WithLabelValues(string(domain.DispatchDuplicate)).Inc()
		logger.Info("duplicate delivery ignored")
		return domain.DispatchDuplicate, nil
	}

	// Until the task is queued, forget the id on failure so the
	// platform's retry can be accepted.
	release := func() {
		if relErr := d.deliveries.Release(context.WithoutCancel(ctx), event.DeliveryID); relErr != nil {
			logger.Warn("failed to release delivery", "error", relErr)
		}
	}

	if err := d.advance(ctx, event.DeliveryID, domain.DeliveryReceived, domain.DeliveryVerified); err != nil {
		release()
		return "", err
	}

	task, err := domain.NewSlackEventTask(event)
	if err == nil {
		err = d.queue.Enqueue(ctx, task)
	}
	if err != nil {
		release()
		return "", fmt.Errorf("enqueue slack event: %w", err)
	}

	if err := d.advance(ctx, event.DeliveryID, domain.DeliveryVerified, domain.DeliveryDispatched); err != nil {
		logger.Warn("delivery dispatched but state not recorded", "error", err)
	}

	metrics.SlackDeliveries.WithLabelValues(string(domain.DispatchAccepted)).Inc()
	logger.Info("delivery dispatched", "task_id", task.ID)
	return domain.DispatchAccepted, nil
}

func (d *Dispatcher) advance(ctx context.Context, id string, from, to domain.DeliveryState) error {
	if err := domain.ValidateTransition(from, to); err != nil {
		return err
	}
	if err := d.deliveries.SetState(ctx, id, to); err != nil {
		return fmt.Errorf("record delivery %s: %w", to, err)
	}
	return nil
}

// Settle records a processing outcome. An expired dedup entry is not an error.
func (d *Dispatcher) Settle(ctx context.Context, id string, state domain.DeliveryState) {
	if err := d.deliveries.SetState(ctx, id, state); err != nil && !errors.Is(err, domain.ErrNotFound) {
		d.logger.Warn("failed to record delivery state", "delivery_id", id, "state", state, "error", err)
	}
}
