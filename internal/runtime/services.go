// Package runtime bundles the provider handles every service shares.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Dependencies lists the handles built at startup. Objects, Chat and Tokens
// are optional; a worker-only process has no use for Tokens.
type Dependencies struct {
	Documents  driven.DocumentStore
	Chunks     driven.ChunkStore
	Index      driven.VectorIndex
	Embedding  driven.EmbeddingService
	LLM        driven.LLMService
	Queue      driven.TaskQueue
	Deliveries driven.DeliveryStore
	Lock       driven.DistributedLock
	Objects    driven.ObjectStore
	Chat       driven.ChatClient
	Tokens     driven.TokenService
}

// Services is an immutable bundle of dependencies. It is safe for
// concurrent use because nothing in it changes after New returns.
type Services struct {
	deps    Dependencies
	closers []io.Closer

	closeOnce sync.Once
	closeErr  error
}

// New validates deps and returns the bundle. Extra closers (database pools,
// Redis clients) are closed by Close after the handles themselves.
func New(deps Dependencies, closers ...io.Closer) (*Services, error) {
	var missing []string
	if deps.Documents == nil {
		missing = append(missing, "documents")
	}
	if deps.Chunks == nil {
		missing = append(missing, "chunks")
	}
	if deps.Index == nil {
		missing = append(missing, "index")
	}
	if deps.Embedding == nil {
		missing = append(missing, "embedding")
	}
	if deps.LLM == nil {
		missing = append(missing, "llm")
	}
	if deps.Queue == nil {
		missing = append(missing, "queue")
	}
	if deps.Deliveries == nil {
		missing = append(missing, "deliveries")
	}
	if deps.Lock == nil {
		missing = append(missing, "lock")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("runtime: missing dependencies: %v", missing)
	}
	return &Services{deps: deps, closers: closers}, nil
}

func (s *Services) Documents() driven.DocumentStore    { return s.deps.Documents }
func (s *Services) Chunks() driven.ChunkStore          { return s.deps.Chunks }
func (s *Services) Index() driven.VectorIndex          { return s.deps.Index }
func (s *Services) Embedding() driven.EmbeddingService { return s.deps.Embedding }
func (s *Services) LLM() driven.LLMService             { return s.deps.LLM }
func (s *Services) Queue() driven.TaskQueue            { return s.deps.Queue }
func (s *Services) Deliveries() driven.DeliveryStore   { return s.deps.Deliveries }
func (s *Services) Lock() driven.DistributedLock       { return s.deps.Lock }
func (s *Services) Objects() driven.ObjectStore        { return s.deps.Objects }
func (s *Services) Chat() driven.ChatClient            { return s.deps.Chat }
func (s *Services) Tokens() driven.TokenService        { return s.deps.Tokens }

// CheckResult is the outcome of one readiness probe.
type CheckResult struct {
	Component string        `json:"component"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
}

// Ready pings every stateful dependency concurrently and returns one result
// per component, sorted by name. Model providers are not probed; they bill
// per call and their outages surface as retries.
func (s *Services) Ready(ctx context.Context) (results []CheckResult, ok bool) {
	checks := map[string]func(context.Context) error{
		"documents":  s.deps.Documents.Ping,
		"index":      s.deps.Index.HealthCheck,
		"queue":      s.deps.Queue.Ping,
		"deliveries": s.deps.Deliveries.Ping,
		"lock":       s.deps.Lock.Ping,
	}
	if s.deps.Objects != nil {
		checks["objects"] = s.deps.Objects.Ping
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check func(context.Context) error) {
			defer wg.Done()
			start := time.Now()
			err := check(ctx)
			r := CheckResult{Component: name, OK: err == nil, Latency: time.Since(start)}
			if err != nil {
				r.Error = err.Error()
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Component < results[j].Component })
	ok = true
	for _, r := range results {
		ok = ok && r.OK
	}
	return results, ok
}

// Close releases every handle once. Later calls return the first result.
func (s *Services) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.deps.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
		if err := s.deps.Index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
		if err := s.deps.Embedding.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedding: %w", err))
		}
		if err := s.deps.LLM.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close llm: %w", err))
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
