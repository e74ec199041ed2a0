package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Verify interface compliance
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers questions by retrieval followed by composition.
type QueryService struct {
	retriever *RetrievalService
	composer  *Composer
	logger    *slog.Logger
	now       func() time.Time
}

// QueryConfig holds dependencies for QueryService.
type QueryConfig struct {
	Retriever *RetrievalService
	Composer  *Composer
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewQueryService creates a new query service.
func NewQueryService(cfg QueryConfig) *QueryService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &QueryService{
		retriever: cfg.Retriever,
		composer:  cfg.Composer,
		logger:    logger,
		now:       now,
	}
}

// Query retrieves passages for req and composes an answer.
// No relevant passages yields the fallback answer, not an error.
func (s *QueryService) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	start := s.now()
	if err := req.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: question is required", err)
	}

	passages, err := s.retriever.Retrieve(ctx, req.Question, req.K)
	if err != nil && !errors.Is(err, domain.ErrNoRelevantPassages) {
		s.observe("error", start)
		s.logger.Error("retrieval failed", "error", err)
		return nil, err
	}

	result, err := s.composer.Compose(ctx, req.Question, passages)
	if err != nil {
		s.observe("error", start)
		s.logger.Error("answer generation failed", "error", err)
		return nil, err
	}

	latency := s.now().Sub(start)
	result.SetLatency(latency)

	outcome := "answered"
	if result.Fallback {
		outcome = "fallback"
	}
	metrics.ObserveQuery(outcome, latency)
	s.logger.Info("query answered",
		"outcome", outcome,
		"passages", len(passages),
		"citations", len(result.Citations),
		"latency_ms", result.LatencyMS,
	)
	return result, nil
}

func (s *QueryService) observe(outcome string, start time.Time) {
	metrics.ObserveQuery(outcome, s.now().Sub(start))
}
