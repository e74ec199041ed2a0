package driving

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// QueryService answers questions against the indexed corpus
type QueryService interface {
	// Query retrieves passages and composes a grounded answer.
	// A question with no relevant passages returns the fallback answer, not an error.
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}
