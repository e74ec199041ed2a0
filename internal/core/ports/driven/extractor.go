package driven

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// Extraction is the text of a document split by page.
type Extraction struct {
	Title string // Empty when the format carries no title
	Pages []domain.Page
}

// TextExtractor turns raw document bytes into page text.
type TextExtractor interface {
	// Extract returns the document's pages in order.
	// Corrupt input returns an error; the caller wraps it as an ExtractionError.
	Extract(ctx context.Context, content []byte) (*Extraction, error)

	// SupportedTypes returns MIME types this extractor handles.
	// Can include wildcards like "text/*".
	SupportedTypes() []string

	// Priority returns the extractor priority (higher = more specific).
	Priority() int
}

// ExtractorRegistry selects an extractor by MIME type.
type ExtractorRegistry interface {
	// Get returns the highest priority extractor for mimeType, or nil.
	Get(mimeType string) TextExtractor

	// Register adds an extractor.
	Register(extractor TextExtractor)
}
