// Package extractors turns raw document bytes into per-page text.
package extractors

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry implements ExtractorRegistry with priority-based selection.
// When multiple extractors match a MIME type, the highest priority one is used.
type Registry struct {
	mu         sync.RWMutex
	extractors []driven.TextExtractor
}

// NewRegistry creates a new extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make([]driven.TextExtractor, 0),
	}
}

// DefaultRegistry creates a registry with the built-in extractors.
func DefaultRegistry(runner CommandRunner) *Registry {
	r := NewRegistry()
	r.Register(NewTextExtractor())
	r.Register(NewMarkdownExtractor())
	r.Register(NewHTMLExtractor())
	r.Register(NewPDFExtractor(runner))
	return r
}

// Register registers an extractor.
func (r *Registry) Register(extractor driven.TextExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.extractors = append(r.extractors, extractor)
}

// Get retrieves the best-matching extractor for a MIME type.
// Returns nil if no extractor is registered for the type.
func (r *Registry) Get(mimeType string) driven.TextExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []driven.TextExtractor
	for _, e := range r.extractors {
		if matchesMIMEType(e.SupportedTypes(), mimeType) {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority() > matches[j].Priority()
	})
	return matches[0]
}

// Extract selects an extractor for mimeType and runs it.
// Every failure is returned as *domain.ExtractionError.
func (r *Registry) Extract(ctx context.Context, documentID, mimeType string, content []byte) (*driven.Extraction, error) {
	extractor := r.Get(mimeType)
	if extractor == nil {
		return nil, &domain.ExtractionError{
			DocumentID: documentID,
			Err:        fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, mimeType),
		}
	}

	extraction, err := extractor.Extract(ctx, content)
	if err != nil {
		return nil, &domain.ExtractionError{DocumentID: documentID, Err: err}
	}
	return extraction, nil
}

// DetectMIMEType guesses a MIME type from the object key and content.
func DetectMIMEType(key string, content []byte) string {
	if strings.HasPrefix(string(content[:min(len(content), 5)]), "%PDF-") {
		return "application/pdf"
	}
	switch strings.ToLower(path.Ext(key)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text":
		return "text/plain"
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// matchesMIMEType checks if any of the supported types match the given MIME type.
// Supports wildcard matching (e.g., "text/*" matches "text/plain").
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	// Strip charset and other parameters
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))

		if supported == mimeType {
			return true
		}

		if strings.HasSuffix(supported, "/*") {
			prefix := supported[:len(supported)-1] // "text/"
			if strings.HasPrefix(mimeType, prefix) {
				return true
			}
		}
	}

	return false
}

// extractTitle returns the first short non-empty line of text.
func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 200 || strings.ContainsRune(line, 0) {
			continue
		}
		return line
	}
	return ""
}

// splitPages splits text on form feeds into numbered pages.
// Blank pages keep their number so later pages stay aligned.
func splitPages(text string) []domain.Page {
	text = strings.TrimRight(text, "\f\n ")
	parts := strings.Split(text, "\f")
	pages := make([]domain.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, domain.Page{Number: i + 1, Text: part})
	}
	return pages
}
