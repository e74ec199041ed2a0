// Package chunking turns extracted page text into ordered, bounded chunks.
//
// Chunking is a pure function of its input: identical pages always yield
// identical chunks, indices and ids.
package chunking

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.Chunker = (*Chunker)(nil)

// Config configures the chunker.
type Config struct {
	// MaxTokens is the maximum tokens per chunk
	MaxTokens int `koanf:"max_tokens"`

	// OverlapTokens is how many trailing tokens of a split piece are
	// repeated at the start of the next piece
	OverlapTokens int `koanf:"overlap_tokens"`

	// ShortPageTokens is the size below which consecutive pages are merged
	ShortPageTokens int `koanf:"short_page_tokens"`

	// MinChars and MinTokens drop units too small to carry meaning
	MinChars  int `koanf:"min_chars"`
	MinTokens int `koanf:"min_tokens"`

	// MinDuplicateLength is the minimum unit length checked for duplicates
	MinDuplicateLength int `koanf:"min_duplicate_length"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:          250,
		OverlapTokens:      40,
		ShortPageTokens:    60,
		MinChars:           100,
		MinTokens:          20,
		MinDuplicateLength: 50,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("chunking: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens*2 > c.MaxTokens {
		return fmt.Errorf("chunking: overlap_tokens must be between 0 and max_tokens/2, got %d", c.OverlapTokens)
	}
	if c.MinTokens > c.MaxTokens {
		return fmt.Errorf("chunking: min_tokens %d exceeds max_tokens %d", c.MinTokens, c.MaxTokens)
	}
	return nil
}

// Chunker splits documents into chunks using the default stage pipeline.
type Chunker struct {
	pipeline *Pipeline
}

// New creates a chunker. Zero fields in cfg take their defaults, except
// OverlapTokens where zero disables overlap and only a negative value
// takes the default.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = def.OverlapTokens
	}
	if cfg.ShortPageTokens <= 0 {
		cfg.ShortPageTokens = def.ShortPageTokens
	}
	if cfg.MinChars <= 0 {
		cfg.MinChars = def.MinChars
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = def.MinTokens
	}
	if cfg.MinDuplicateLength <= 0 {
		cfg.MinDuplicateLength = def.MinDuplicateLength
	}

	return &Chunker{
		pipeline: NewPipeline(
			NewWhitespaceNormalizer(),
			NewPageMerger(cfg.ShortPageTokens, cfg.MaxTokens),
			NewSentenceSplitter(cfg.MaxTokens, cfg.OverlapTokens),
			NewDeduplicator(cfg.MinDuplicateLength),
			NewQualityFilter(cfg.MinChars, cfg.MinTokens),
		),
	}
}

// Stages returns the pipeline stage names in order.
func (c *Chunker) Stages() []string {
	return c.pipeline.List()
}

// Chunk returns the chunks of a document in emission order.
// A document with no surviving text returns *domain.EmptyDocumentError.
func (c *Chunker) Chunk(documentID string, pages []domain.Page) ([]*domain.Chunk, error) {
	units := c.pipeline.Process(pages)
	if len(units) == 0 {
		return nil, &domain.EmptyDocumentError{DocumentID: documentID}
	}

	chunks := make([]*domain.Chunk, len(units))
	for i, unit := range units {
		sum := sha256.Sum256([]byte(unit.Content))
		chunks[i] = &domain.Chunk{
			ID:          domain.ChunkID(documentID, i),
			DocumentID:  documentID,
			Index:       i,
			Content:     unit.Content,
			TokenCount:  unit.Tokens,
			Page:        unit.Page,
			PageEnd:     unit.PageEnd,
			ContentHash: hex.EncodeToString(sum[:]),
		}
	}
	return chunks, nil
}
