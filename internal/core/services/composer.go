package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/nexus/internal/chunking"
	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// FallbackAnswer is returned verbatim when no passage clears the relevance threshold.
const FallbackAnswer = "Insufficient information in the indexed documents to answer this question."

// Composer defaults
const (
	DefaultContextTokens = 3000
	DefaultAnswerTokens  = 2000
	DefaultTemperature   = 0.3
	fallbackCitations    = 3
)

const systemPrompt = `You are a document assistant for an organization's internal documents.
Answer the question using only the context passages provided. If the context does not contain the answer, say that the documents do not cover it. Do not use outside knowledge.

Be concise and precise. Quote figures, periods and names exactly as they appear in the context.

After the answer, list the passages you relied on in this exact format:
SOURCES:
- <document title>, Page <page number>`

var (
	sourcesHeader = regexp.MustCompile(`(?im)^[\s*_]*sources[\s*_]*:`)
	sourceLine    = regexp.MustCompile(`(?i)-\s*([^,\n]+),\s*Page\s*(\d+)`)
)

// Composer turns retrieved passages into a grounded answer with citations.
type Composer struct {
	llm    driven.LLMService
	logger *slog.Logger

	contextTokens int
	answerTokens  int
	temperature   float64
	linkBaseURL   string
	policy        RetryPolicy
}

// ComposerConfig holds dependencies for Composer.
type ComposerConfig struct {
	LLM    driven.LLMService
	Logger *slog.Logger

	ContextTokens int     // Token budget for included passages (default: 3000)
	AnswerTokens  int     // Max tokens the model may generate (default: 2000)
	Temperature   float64 // default: 0.3
	LinkBaseURL   string  // Optional: citations link to <base>/<document id>#page=<n>
	Retry         RetryPolicy
}

// NewComposer creates a new answer composer.
func NewComposer(cfg ComposerConfig) *Composer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	contextTokens := cfg.ContextTokens
	if contextTokens <= 0 {
		contextTokens = DefaultContextTokens
	}
	answerTokens := cfg.AnswerTokens
	if answerTokens <= 0 {
		answerTokens = DefaultAnswerTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	return &Composer{
		llm:           cfg.LLM,
		logger:        logger,
		contextTokens: contextTokens,
		answerTokens:  answerTokens,
		temperature:   temperature,
		linkBaseURL:   strings.TrimRight(cfg.LinkBaseURL, "/"),
		policy:        cfg.Retry.withDefaults(),
	}
}

// Compose answers question from passages, which must be ordered most relevant first.
// With no passages it returns the fallback answer without calling the model.
// When every generation attempt fails it returns *domain.GenerationError.
func (c *Composer) Compose(ctx context.Context, question string, passages []domain.RetrievedPassage) (*domain.QueryResult, error) {
	if len(passages) == 0 {
		return &domain.QueryResult{
			Question:  question,
			Answer:    FallbackAnswer,
			Citations: []domain.Citation{},
			Fallback:  true,
		}, nil
	}

	included := c.fitBudget(passages)
	req := driven.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(question, included),
		MaxTokens:    c.answerTokens,
		Temperature:  c.temperature,
	}

	raw, attempts, err := retry(ctx, c.policy, "generate", c.logger, func(ctx context.Context) (string, error) {
		return c.llm.Complete(ctx, req)
	})
	if err != nil {
		return nil, &domain.GenerationError{Attempts: attempts, Err: err}
	}

	answer, cited := splitSources(raw)
	citations := c.matchCitations(cited, included)
	if len(citations) == 0 {
		citations = c.topCitations(included, fallbackCitations)
	}

	c.logger.Debug("answer composed",
		"passages", len(passages),
		"included", len(included),
		"citations", len(citations),
		"attempts", attempts,
	)

	return &domain.QueryResult{
		Question:  question,
		Answer:    answer,
		Citations: citations,
	}, nil
}

// fitBudget keeps passages in order until the next one would exceed the
// context budget. The top passage is always kept, truncated if needed.
func (c *Composer) fitBudget(passages []domain.RetrievedPassage) []domain.RetrievedPassage {
	var out []domain.RetrievedPassage
	used := 0
	for i, p := range passages {
		tokens := p.TokenCount
		if tokens <= 0 {
			tokens = chunking.CountTokens(p.Text)
		}
		if used+tokens > c.contextTokens {
			if i == 0 {
				p.Text = truncateTokens(p.Text, c.contextTokens)
				p.TokenCount = c.contextTokens
				out = append(out, p)
			}
			break
		}
		used += tokens
		out = append(out, p)
	}
	return out
}

func truncateTokens(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

func buildUserPrompt(question string, passages []domain.RetrievedPassage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("[Source: %s, Page %d, Relevance: %.2f]\n%s", p.Title, p.Page, p.Score, p.Text)
	}
	return "Context:\n\n" + strings.Join(parts, "\n\n") + "\n\nQuestion: " + question
}

type citedSource struct {
	title string
	page  int
}

// splitSources separates the answer body from its SOURCES section.
func splitSources(raw string) (string, []citedSource) {
	loc := sourcesHeader.FindStringIndex(raw)
	if loc == nil {
		return strings.TrimSpace(raw), nil
	}
	answer := strings.TrimSpace(raw[:loc[0]])

	var cited []citedSource
	for _, m := range sourceLine.FindAllStringSubmatch(raw[loc[1]:], -1) {
		page, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		cited = append(cited, citedSource{title: strings.TrimSpace(m[1]), page: page})
	}
	return answer, cited
}

// matchCitations keeps cited sources that correspond to an included passage.
func (c *Composer) matchCitations(cited []citedSource, included []domain.RetrievedPassage) []domain.Citation {
	type key struct {
		doc  string
		page int
	}
	seen := make(map[key]bool)
	var out []domain.Citation
	for _, src := range cited {
		for _, p := range included {
			if p.Page != src.page || !sameDocument(src.title, p) {
				continue
			}
			k := key{p.DocumentID, p.Page}
			if !seen[k] {
				seen[k] = true
				out = append(out, c.citation(p))
			}
			break
		}
	}
	return out
}

func sameDocument(cited string, p domain.RetrievedPassage) bool {
	cited = strings.Trim(strings.TrimSpace(cited), `"'*`)
	return strings.EqualFold(cited, p.Title) ||
		strings.EqualFold(cited, p.DocumentID) ||
		domain.DocumentIDFromSource(cited) == p.DocumentID
}

// topCitations cites the first n included passages, one per (document, page).
func (c *Composer) topCitations(included []domain.RetrievedPassage, n int) []domain.Citation {
	type key struct {
		doc  string
		page int
	}
	seen := make(map[key]bool)
	out := make([]domain.Citation, 0, n)
	for _, p := range included {
		if len(out) == n {
			break
		}
		k := key{p.DocumentID, p.Page}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c.citation(p))
	}
	return out
}

func (c *Composer) citation(p domain.RetrievedPassage) domain.Citation {
	cit := domain.Citation{
		DocumentID: p.DocumentID,
		Title:      p.Title,
		Page:       p.Page,
		Score:      p.Score,
	}
	if c.linkBaseURL != "" {
		cit.URL = fmt.Sprintf("%s/%s#page=%d", c.linkBaseURL, url.PathEscape(p.DocumentID), p.Page)
	}
	return cit
}
