package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.LLMService = (*MockLLMService)(nil)

// MockLLMService is a scripted LLMService for testing.
type MockLLMService struct {
	mu       sync.Mutex
	requests []driven.CompletionRequest

	// CompleteFn overrides the default response when set
	CompleteFn func(ctx context.Context, req driven.CompletionRequest) (string, error)

	// Response is returned when CompleteFn is nil
	Response string
}

// NewMockLLMService creates a mock that answers with response.
func NewMockLLMService(response string) *MockLLMService {
	return &MockLLMService{Response: response}
}

func (m *MockLLMService) Complete(ctx context.Context, req driven.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.CompleteFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return m.Response, nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	return nil
}

func (m *MockLLMService) Close() error {
	return nil
}

// Calls returns how many completions were requested.
func (m *MockLLMService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request.
func (m *MockLLMService) LastRequest() driven.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return driven.CompletionRequest{}
	}
	return m.requests[len(m.requests)-1]
}
