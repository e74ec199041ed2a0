package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var (
	_ driven.EmbeddingService = (*LangchainEmbedding)(nil)
	_ driven.LLMService       = (*LangchainLLM)(nil)
)

// contentGenerator is the part of a langchaingo model used for answers.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LangchainEmbedding generates embeddings through langchaingo. It serves
// OpenAI-compatible servers (TEI, vLLM) and Ollama.
type LangchainEmbedding struct {
	embedder      embeddings.Embedder
	model         string
	dimensions    int
	maxInputChars int
	limiter       *rate.Limiter
}

// NewLangchainEmbedding creates an embedding service for an OpenAI-compatible
// or Ollama endpoint.
func NewLangchainEmbedding(settings domain.EmbeddingSettings) (*LangchainEmbedding, error) {
	if settings.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required for %s embeddings", domain.ErrInvalidInput, settings.Provider)
	}
	if settings.Model == "" {
		return nil, fmt.Errorf("%w: model required for %s embeddings", domain.ErrInvalidInput, settings.Provider)
	}

	var client embeddings.EmbedderClient
	switch settings.Provider {
	case domain.AIProviderOllama:
		llm, err := ollama.New(ollama.WithServerURL(settings.BaseURL), ollama.WithModel(settings.Model))
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		client = llm
	default:
		llm, err := newOpenAIClient(settings.BaseURL, settings.Model, settings.APIKey)
		if err != nil {
			return nil, err
		}
		client = llm
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return newLangchainEmbedding(embedder, settings), nil
}

func newLangchainEmbedding(embedder embeddings.Embedder, settings domain.EmbeddingSettings) *LangchainEmbedding {
	maxChars := settings.MaxInputChars
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	return &LangchainEmbedding{
		embedder:      embedder,
		model:         settings.Model,
		dimensions:    settings.Dimensions,
		maxInputChars: maxChars,
		limiter:       newLimiter(settings.RequestsPerSecond),
	}
}

// newOpenAIClient builds a langchaingo OpenAI client. Local servers accept any token.
func newOpenAIClient(baseURL, model, apiKey string) (*openai.LLM, error) {
	if apiKey == "" {
		apiKey = "placeholder"
	}
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return llm, nil
}

// Embed generates embeddings for multiple texts
func (e *LangchainEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}

	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = truncateRunes(t, e.maxInputChars)
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding documents: %v", domain.ErrServiceUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if err := checkDimensions(vectors, e.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a search query
func (e *LangchainEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}
	vec, err := e.embedder.EmbedQuery(ctx, truncateRunes(query, e.maxInputChars))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", domain.ErrServiceUnavailable, err)
	}
	if err := checkDimensions([][]float32{vec}, e.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// Dimensions returns the configured vector size, 0 when unchecked
func (e *LangchainEmbedding) Dimensions() int { return e.dimensions }

// Model returns the model name being used
func (e *LangchainEmbedding) Model() string { return e.model }

// HealthCheck embeds a short probe
func (e *LangchainEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close is a no-op; langchaingo clients hold no resources.
func (e *LangchainEmbedding) Close() error { return nil }

// LangchainLLM generates answers through langchaingo.
type LangchainLLM struct {
	model     contentGenerator
	modelName string
	limiter   *rate.Limiter
}

// NewLangchainLLM creates an LLM service for OpenAI, an OpenAI-compatible
// server or Ollama.
func NewLangchainLLM(settings domain.LLMSettings) (*LangchainLLM, error) {
	if settings.Model == "" {
		return nil, fmt.Errorf("%w: model required for %s LLM", domain.ErrInvalidInput, settings.Provider)
	}

	var model contentGenerator
	switch settings.Provider {
	case domain.AIProviderOllama:
		if settings.BaseURL == "" {
			return nil, fmt.Errorf("%w: base URL required for ollama LLM", domain.ErrInvalidInput)
		}
		llm, err := ollama.New(ollama.WithServerURL(settings.BaseURL), ollama.WithModel(settings.Model))
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		model = llm
	case domain.AIProviderOpenAI, domain.AIProviderOpenAICompatible:
		baseURL := settings.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		llm, err := newOpenAIClient(baseURL, settings.Model, settings.APIKey)
		if err != nil {
			return nil, err
		}
		model = llm
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}

	return &LangchainLLM{
		model:     model,
		modelName: settings.Model,
		limiter:   newLimiter(settings.RequestsPerSecond),
	}, nil
}

// Complete sends the system and user prompts as one chat exchange.
func (l *LangchainLLM) Complete(ctx context.Context, req driven.CompletionRequest) (string, error) {
	if err := wait(ctx, l.limiter); err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		textMessage(llms.ChatMessageTypeSystem, req.SystemPrompt),
		textMessage(llms.ChatMessageTypeHuman, req.UserPrompt),
	}

	var opts []llms.CallOption
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := l.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", errors.New("model returned an empty answer")
	}
	return text, nil
}

// Model returns the model name being used
func (l *LangchainLLM) Model() string { return l.modelName }

// Ping runs a one-token completion
func (l *LangchainLLM) Ping(ctx context.Context) error {
	_, err := l.model.GenerateContent(ctx,
		[]llms.MessageContent{textMessage(llms.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1),
	)
	return err
}

// Close is a no-op; langchaingo clients hold no resources.
func (l *LangchainLLM) Close() error { return nil }

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}
