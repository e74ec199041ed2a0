package domain

import (
	"strings"
	"time"
)

// QueryRequest is a single question asked of the corpus
type QueryRequest struct {
	Question string `json:"question" example:"What is the minimum retention period for board meeting minutes?"`
	K        int    `json:"k,omitempty" example:"5"` // Optional result count override
}

// Normalize trims the question and reports whether it is usable.
func (r *QueryRequest) Normalize() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return ErrInvalidInput
	}
	return nil
}

// RetrievedPassage is one ranked search hit
type RetrievedPassage struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"` // 0-1, higher is better
	Page       int     `json:"page"`
	TokenCount int     `json:"token_count"`
}

// Citation points an answer back at a document page
type Citation struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	URL        string  `json:"url,omitempty"`
}

// QueryResult is the composed answer to a QueryRequest
type QueryResult struct {
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Citations []Citation    `json:"citations"`
	Fallback  bool          `json:"fallback"` // true when no passage cleared the relevance threshold
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
}

// SetLatency records the elapsed time in both representations.
func (r *QueryResult) SetLatency(d time.Duration) {
	r.Latency = d
	r.LatencyMS = d.Milliseconds()
}
