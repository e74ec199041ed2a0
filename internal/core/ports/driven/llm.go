package driven

import (
	"context"
)

// CompletionRequest is a single grounded completion call.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string // Context passages followed by the question
	MaxTokens    int
	Temperature  float64
}

// LLMService provides answer generation
type LLMService interface {
	// Complete runs one completion and returns the generated text
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
