package extractors

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

// errNotText is returned for content that is not valid UTF-8.
var errNotText = errors.New("content is not valid UTF-8 text")

// TextExtractor handles plain text. Form feeds separate pages.
type TextExtractor struct{}

var _ driven.TextExtractor = (*TextExtractor)(nil)

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Extract(ctx context.Context, content []byte) (*driven.Extraction, error) {
	if !utf8.Valid(content) {
		return nil, errNotText
	}
	text := string(content)
	return &driven.Extraction{Title: extractTitle(text), Pages: splitPages(text)}, nil
}

func (e *TextExtractor) SupportedTypes() []string {
	return []string{"text/plain"}
}

func (e *TextExtractor) Priority() int {
	return 10
}

// MarkdownExtractor handles Markdown. The first heading becomes the title.
type MarkdownExtractor struct{}

var _ driven.TextExtractor = (*MarkdownExtractor)(nil)

func NewMarkdownExtractor() *MarkdownExtractor { return &MarkdownExtractor{} }

func (e *MarkdownExtractor) Extract(ctx context.Context, content []byte) (*driven.Extraction, error) {
	if !utf8.Valid(content) {
		return nil, errNotText
	}
	text := string(content)

	title := ""
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			title = strings.TrimSpace(strings.TrimLeft(line, "#"))
			break
		}
	}
	if title == "" {
		title = extractTitle(text)
	}
	return &driven.Extraction{Title: title, Pages: splitPages(text)}, nil
}

func (e *MarkdownExtractor) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (e *MarkdownExtractor) Priority() int {
	return 50
}

// HTMLExtractor strips markup from HTML pages.
type HTMLExtractor struct{}

var _ driven.TextExtractor = (*HTMLExtractor)(nil)

func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

func (e *HTMLExtractor) Extract(ctx context.Context, content []byte) (*driven.Extraction, error) {
	if !utf8.Valid(content) {
		return nil, errNotText
	}
	html := string(content)
	title := between(html, "<title>", "</title>")

	html = removeHTMLBlocks(html, "script")
	html = removeHTMLBlocks(html, "style")
	text := decodeHTMLEntities(stripHTMLTags(html))

	if title == "" {
		title = extractTitle(text)
	}
	return &driven.Extraction{Title: strings.TrimSpace(title), Pages: splitPages(text)}, nil
}

func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (e *HTMLExtractor) Priority() int {
	return 50
}

func between(s, open, close string) string {
	lower := strings.ToLower(s)
	start := strings.Index(lower, open)
	if start == -1 {
		return ""
	}
	start += len(open)
	end := strings.Index(lower[start:], close)
	if end == -1 {
		return ""
	}
	return s[start : start+end]
}

func removeHTMLBlocks(content, tagName string) string {
	startTag := "<" + tagName
	endTag := "</" + tagName + ">"
	result := content

	for {
		lower := strings.ToLower(result)
		startIdx := strings.Index(lower, startTag)
		if startIdx == -1 {
			break
		}
		endIdx := strings.Index(lower[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		result = result[:startIdx] + result[startIdx+endIdx+len(endTag):]
	}
	return result
}

func stripHTMLTags(content string) string {
	var result strings.Builder
	inTag := false

	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}
	return result.String()
}

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&apos;", "'",
	"&#39;", "'",
	"&hellip;", "...",
)

func decodeHTMLEntities(content string) string {
	return htmlEntities.Replace(content)
}
