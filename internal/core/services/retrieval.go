package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Retrieval defaults
const (
	DefaultTopK     = 5
	MaxTopK         = 20
	DefaultMinScore = 0.25
)

// RetrievalService finds the passages most relevant to a question.
type RetrievalService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	logger   *slog.Logger

	defaultK int
	maxK     int
	minScore float64
	policy   RetryPolicy
}

// RetrievalConfig holds dependencies for RetrievalService.
type RetrievalConfig struct {
	Embedder driven.EmbeddingService
	Index    driven.VectorIndex
	Logger   *slog.Logger

	DefaultK int     // default: 5
	MaxK     int     // default: 20
	MinScore float64 // Passages scoring below are discarded; 0 keeps all (negative: 0.25)
	Retry    RetryPolicy
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(cfg RetrievalConfig) *RetrievalService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxK := cfg.MaxK
	if maxK <= 0 {
		maxK = MaxTopK
	}
	defaultK := cfg.DefaultK
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	if defaultK > maxK {
		defaultK = maxK
	}
	minScore := cfg.MinScore
	if minScore < 0 {
		minScore = DefaultMinScore
	}

	return &RetrievalService{
		embedder: cfg.Embedder,
		index:    cfg.Index,
		logger:   logger,
		defaultK: defaultK,
		maxK:     maxK,
		minScore: minScore,
		policy:   cfg.Retry.withDefaults(),
	}
}

// ClampK resolves a requested result count: zero or negative means the
// default, anything above the maximum is capped.
func (s *RetrievalService) ClampK(k int) int {
	switch {
	case k <= 0:
		return s.defaultK
	case k > s.maxK:
		return s.maxK
	default:
		return k
	}
}

// Retrieve returns passages above the relevance threshold, most relevant first.
// Returns domain.ErrNoRelevantPassages when nothing clears the threshold.
// Provider failures are returned as wrapped errors, never as ErrNoRelevantPassages.
func (s *RetrievalService) Retrieve(ctx context.Context, question string, k int) ([]domain.RetrievedPassage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrInvalidInput
	}
	k = s.ClampK(k)

	vector, _, err := retry(ctx, s.policy, "embed_query", s.logger, func(ctx context.Context) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	matches, _, err := retry(ctx, s.policy, "search", s.logger, func(ctx context.Context) ([]driven.VectorMatch, error) {
		return s.index.Search(ctx, vector, k)
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	passages := make([]domain.RetrievedPassage, 0, len(matches))
	for _, m := range matches {
		score := clampScore(m.Score)
		if score < s.minScore {
			continue
		}
		passages = append(passages, domain.RetrievedPassage{
			ChunkID:    m.Record.ID,
			DocumentID: m.Record.DocumentID,
			Title:      m.Record.Title,
			Text:       m.Record.Text,
			Score:      score,
			Page:       m.Record.Page,
			TokenCount: m.Record.TokenCount,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		if passages[i].Score != passages[j].Score {
			return passages[i].Score > passages[j].Score
		}
		return passages[i].ChunkID < passages[j].ChunkID
	})
	if len(passages) > k {
		passages = passages[:k]
	}

	s.logger.Debug("retrieval completed",
		"k", k,
		"matches", len(matches),
		"relevant", len(passages),
	)

	if len(passages) == 0 {
		return nil, domain.ErrNoRelevantPassages
	}
	return passages, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
