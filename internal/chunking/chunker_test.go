package chunking

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// sentence builds a sentence of n words that ends with a period.
func sentence(prefix string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ") + "."
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid: %v", err)
	}
	if cfg.MinChars != 100 || cfg.MinTokens != 20 {
		t.Errorf("unexpected quality thresholds: %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero max", Config{MaxTokens: 0}},
		{"overlap too large", Config{MaxTokens: 100, OverlapTokens: 60}},
		{"negative overlap", Config{MaxTokens: 100, OverlapTokens: -1}},
		{"min over max", Config{MaxTokens: 100, OverlapTokens: 10, MinTokens: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestChunker_Stages(t *testing.T) {
	c := New(DefaultConfig())
	want := []string{"whitespace-normalizer", "page-merger", "sentence-splitter", "deduplicator", "quality-filter"}
	got := c.Stages()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected stages %v, got %v", want, got)
	}
}

func TestChunker_OneChunkPerPage(t *testing.T) {
	c := New(DefaultConfig())
	pages := []domain.Page{
		{Number: 1, Text: sentence("alpha", 80)},
		{Number: 2, Text: sentence("beta", 80)},
		{Number: 3, Text: sentence("gamma", 80)},
	}

	chunks, err := c.Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d: expected index %d, got %d", i, i, chunk.Index)
		}
		if chunk.Page != i+1 || chunk.PageEnd != i+1 {
			t.Errorf("chunk %d: expected page %d, got %d-%d", i, i+1, chunk.Page, chunk.PageEnd)
		}
		if chunk.ID != domain.ChunkID("doc", i) {
			t.Errorf("chunk %d: unexpected id %s", i, chunk.ID)
		}
		if chunk.TokenCount != 80 {
			t.Errorf("chunk %d: expected 80 tokens, got %d", i, chunk.TokenCount)
		}
		if chunk.ContentHash == "" {
			t.Errorf("chunk %d: expected content hash", i)
		}
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := New(Config{MaxTokens: 50, OverlapTokens: 10})
	pages := []domain.Page{
		{Number: 1, Text: sentence("a", 30) + " " + sentence("b", 30) + " " + sentence("c", 30)},
		{Number: 2, Text: sentence("d", 25)},
		{Number: 3, Text: sentence("e", 25)},
	}

	first, err := c.Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := New(Config{MaxTokens: 50, OverlapTokens: 10}).Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected equal chunk counts, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content || first[i].ContentHash != second[i].ContentHash {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestChunker_MergesShortPages(t *testing.T) {
	c := New(DefaultConfig())
	pages := []domain.Page{
		{Number: 1, Text: sentence("title", 15)},
		{Number: 2, Text: sentence("intro", 15)},
		{Number: 3, Text: sentence("body", 90)},
	}

	chunks, err := c.Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[0].PageEnd != 2 {
		t.Errorf("expected merged chunk to span pages 1-2, got %d-%d", chunks[0].Page, chunks[0].PageEnd)
	}
	if chunks[0].TokenCount != 30 {
		t.Errorf("expected 30 merged tokens, got %d", chunks[0].TokenCount)
	}
	if chunks[1].Page != 3 {
		t.Errorf("expected second chunk on page 3, got %d", chunks[1].Page)
	}
}

func TestChunker_SplitsWithOverlap(t *testing.T) {
	c := New(Config{MaxTokens: 50, OverlapTokens: 5})
	text := sentence("a", 30) + " " + sentence("b", 30) + " " + sentence("c", 30)

	chunks, err := c.Chunk("doc", []domain.Page{{Number: 7, Text: text}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.TokenCount > 50 {
			t.Errorf("chunk %d exceeds max tokens: %d", i, chunk.TokenCount)
		}
		if chunk.Page != 7 {
			t.Errorf("chunk %d: expected page 7, got %d", i, chunk.Page)
		}
	}

	// Second chunk starts with the last 5 tokens of the first
	prev := strings.Fields(chunks[0].Content)
	next := strings.Fields(chunks[1].Content)
	for i := 0; i < 5; i++ {
		if next[i] != prev[len(prev)-5+i] {
			t.Fatalf("expected overlap %v, got %v", prev[len(prev)-5:], next[:5])
		}
	}
	if !strings.HasPrefix(next[5], "b0") {
		t.Errorf("expected new content to start at sentence b, got %q", next[5])
	}
}

func TestChunker_ZeroOverlap(t *testing.T) {
	text := sentence("a", 30) + " " + sentence("b", 30) + " " + sentence("c", 30)

	chunks, err := New(Config{MaxTokens: 50, OverlapTokens: 0}).Chunk("doc", []domain.Page{{Number: 1, Text: text}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, prefix := range []string{"a0", "b0", "c0"} {
		if first := strings.Fields(chunks[i].Content)[0]; first != prefix {
			t.Errorf("chunk %d: expected no overlap, starts with %q", i, first)
		}
	}

	// A negative overlap falls back to the default
	chunks, err = New(Config{MaxTokens: 70, OverlapTokens: -1}).Chunk("doc", []domain.Page{{Number: 1, Text: text}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if strings.HasPrefix(chunks[1].Content, "c0") {
		t.Errorf("expected default overlap before sentence c, got %q", chunks[1].Content)
	}
}

func TestChunker_HardSplitsLongSentence(t *testing.T) {
	c := New(Config{MaxTokens: 40, OverlapTokens: 5})
	chunks, err := c.Chunk("doc", []domain.Page{{Number: 1, Text: sentence("w", 150)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 4 {
		t.Fatalf("expected at least 4 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.TokenCount > 40 {
			t.Errorf("chunk %d exceeds max tokens: %d", i, chunk.TokenCount)
		}
	}
}

func TestChunker_DropsSmallUnits(t *testing.T) {
	c := New(Config{ShortPageTokens: 1})
	pages := []domain.Page{
		{Number: 1, Text: "Page 1"},
		{Number: 2, Text: sentence("body", 40)},
		{Number: 3, Text: "   \n\t "},
	}

	chunks, err := c.Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[0].Page != 2 {
		t.Errorf("expected surviving chunk to be index 0 from page 2, got index %d page %d", chunks[0].Index, chunks[0].Page)
	}
}

func TestChunker_EmptyDocument(t *testing.T) {
	c := New(DefaultConfig())

	tests := []struct {
		name  string
		pages []domain.Page
	}{
		{"no pages", nil},
		{"blank pages", []domain.Page{{Number: 1, Text: "  "}, {Number: 2, Text: "\n\n"}}},
		{"too short", []domain.Page{{Number: 1, Text: "Confidential"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chunk("empty-doc", tt.pages)
			var emptyErr *domain.EmptyDocumentError
			if !errors.As(err, &emptyErr) {
				t.Fatalf("expected EmptyDocumentError, got %v", err)
			}
			if emptyErr.DocumentID != "empty-doc" {
				t.Errorf("expected document id empty-doc, got %s", emptyErr.DocumentID)
			}
		})
	}
}

func TestChunker_RemovesDuplicatePages(t *testing.T) {
	c := New(DefaultConfig())
	body := sentence("clause", 70)
	pages := []domain.Page{
		{Number: 1, Text: body},
		{Number: 2, Text: strings.ToUpper(body)},
		{Number: 3, Text: sentence("other", 70)},
	}

	chunks, err := c.Chunk("doc", pages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[1].Page != 3 || chunks[1].Index != 1 {
		t.Errorf("expected second chunk from page 3 with index 1, got page %d index %d", chunks[1].Page, chunks[1].Index)
	}
}
