package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// MockChatClient records posted messages.
type MockChatClient struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	attempts int

	// PostFn is called before recording; an error skips recording
	PostFn func(msg domain.ChatMessage) error
}

// NewMockChatClient creates a new MockChatClient
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{}
}

func (m *MockChatClient) PostMessage(ctx context.Context, msg domain.ChatMessage) error {
	m.mu.Lock()
	m.attempts++
	fn := m.PostFn
	m.mu.Unlock()

	if fn != nil {
		if err := fn(msg); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns the successfully posted messages.
func (m *MockChatClient) Messages() []domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Attempts returns how many posts were attempted, including failures.
func (m *MockChatClient) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
