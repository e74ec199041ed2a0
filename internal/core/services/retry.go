package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/nexus/internal/metrics"
)

// RetryPolicy bounds retries of provider calls (embedding, index writes, generation).
// Delays grow exponentially from InitialInterval up to MaxInterval, each randomized
// by ±Jitter.
type RetryPolicy struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
	Jitter          float64       `koanf:"jitter"`
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = def.Jitter
	}
	return p
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	return b
}

// retry runs fn under the policy and reports how many attempts were made.
// Errors wrapped with backoff.Permanent stop immediately and are returned unwrapped.
func retry[T any](ctx context.Context, p RetryPolicy, operation string, logger *slog.Logger, fn func(context.Context) (T, error)) (T, int, error) {
	p = p.withDefaults()
	attempts := 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		return fn(ctx)
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.ProviderRetries.WithLabelValues(operation).Inc()
			if logger != nil {
				logger.Warn("retrying provider call",
					"operation", operation,
					"attempt", attempts,
					"next_in", next,
					"error", err,
				)
			}
		}),
	)
	return result, attempts, err
}
