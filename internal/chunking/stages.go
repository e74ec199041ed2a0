package chunking

import (
	"regexp"
	"strings"
)

// WhitespaceNormalizer normalizes whitespace and drops empty units.
type WhitespaceNormalizer struct{}

var _ Stage = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace in units.
func (w *WhitespaceNormalizer) Process(units []Unit) []Unit {
	result := make([]Unit, 0, len(units))

	for _, unit := range units {
		content := normalizeWhitespace(unit.Content)
		if content == "" {
			continue
		}
		result = append(result, newUnit(content, unit.Page, unit.PageEnd))
	}
	return result
}

func normalizeWhitespace(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\f", "\n")

	// Collapse runs of spaces and tabs but keep line structure
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	content = strings.Join(lines, "\n")

	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(content)
}

func (w *WhitespaceNormalizer) Name() string { return "whitespace-normalizer" }

func (w *WhitespaceNormalizer) Order() int { return 0 }

// PageMerger joins consecutive short pages so that sparse pages
// (title pages, section breaks) do not become tiny chunks.
type PageMerger struct {
	shortTokens int
	maxTokens   int
}

var _ Stage = (*PageMerger)(nil)

// NewPageMerger merges neighbours while both are under shortTokens
// and the result stays within maxTokens.
func NewPageMerger(shortTokens, maxTokens int) *PageMerger {
	return &PageMerger{shortTokens: shortTokens, maxTokens: maxTokens}
}

// Process merges short neighbouring units.
func (m *PageMerger) Process(units []Unit) []Unit {
	if len(units) <= 1 {
		return units
	}

	result := make([]Unit, 0, len(units))
	buf := units[0]
	for _, next := range units[1:] {
		if buf.Tokens < m.shortTokens && next.Tokens < m.shortTokens && buf.Tokens+next.Tokens <= m.maxTokens {
			buf = newUnit(buf.Content+"\n\n"+next.Content, buf.Page, next.PageEnd)
			continue
		}
		result = append(result, buf)
		buf = next
	}
	return append(result, buf)
}

func (m *PageMerger) Name() string { return "page-merger" }

func (m *PageMerger) Order() int { return 10 }

// sentenceEnd matches the gap after a sentence terminator or a paragraph break.
var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+|\n\s*\n`)

// SentenceSplitter splits units over maxTokens at sentence boundaries.
// Each piece after the first starts with the last overlapTokens tokens
// of the piece before it.
type SentenceSplitter struct {
	maxTokens     int
	overlapTokens int
}

var _ Stage = (*SentenceSplitter)(nil)

// NewSentenceSplitter creates a splitter. overlapTokens must be below maxTokens.
func NewSentenceSplitter(maxTokens, overlapTokens int) *SentenceSplitter {
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}
	return &SentenceSplitter{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Process splits oversized units.
func (s *SentenceSplitter) Process(units []Unit) []Unit {
	result := make([]Unit, 0, len(units))
	for _, unit := range units {
		if unit.Tokens <= s.maxTokens {
			result = append(result, unit)
			continue
		}
		for _, piece := range s.split(unit.Content) {
			result = append(result, newUnit(piece, unit.Page, unit.PageEnd))
		}
	}
	return result
}

func (s *SentenceSplitter) split(content string) []string {
	// Any single sentence must leave room for the overlap prefix
	limit := s.maxTokens - s.overlapTokens

	var sentences [][]string
	for _, sentence := range splitSentences(content) {
		words := strings.Fields(sentence)
		for len(words) > limit {
			sentences = append(sentences, words[:limit])
			words = words[limit:]
		}
		if len(words) > 0 {
			sentences = append(sentences, words)
		}
	}

	var pieces []string
	var current []string
	fresh := 0 // words in current that are not overlap
	for _, words := range sentences {
		if fresh > 0 && len(current)+len(words) > s.maxTokens {
			pieces = append(pieces, strings.Join(current, " "))
			current = tail(current, s.overlapTokens)
			fresh = 0
		}
		current = append(current, words...)
		fresh += len(words)
	}
	if fresh > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}
	return pieces
}

// tail returns a copy of the last n words.
func tail(words []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if n > len(words) {
		n = len(words)
	}
	out := make([]string, n)
	copy(out, words[len(words)-n:])
	return out
}

// splitSentences cuts text after each sentence terminator or paragraph break.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func (s *SentenceSplitter) Name() string { return "sentence-splitter" }

func (s *SentenceSplitter) Order() int { return 20 }

// Deduplicator removes repeated units such as running headers
// that survive as whole pages.
type Deduplicator struct {
	minLength int
}

var _ Stage = (*Deduplicator)(nil)

// NewDeduplicator checks units of at least minLength characters.
func NewDeduplicator(minLength int) *Deduplicator {
	return &Deduplicator{minLength: minLength}
}

// Process keeps the first occurrence of each unit.
func (d *Deduplicator) Process(units []Unit) []Unit {
	if len(units) <= 1 {
		return units
	}

	seen := make(map[string]bool)
	result := make([]Unit, 0, len(units))
	for _, unit := range units {
		if len(unit.Content) < d.minLength {
			result = append(result, unit)
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(unit.Content), " "))
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, unit)
	}
	return result
}

func (d *Deduplicator) Name() string { return "deduplicator" }

func (d *Deduplicator) Order() int { return 30 }

// QualityFilter drops units too small to be meaningful on their own.
type QualityFilter struct {
	minChars  int
	minTokens int
}

var _ Stage = (*QualityFilter)(nil)

// NewQualityFilter keeps units with at least minChars characters and minTokens tokens.
func NewQualityFilter(minChars, minTokens int) *QualityFilter {
	return &QualityFilter{minChars: minChars, minTokens: minTokens}
}

// Process filters units.
func (q *QualityFilter) Process(units []Unit) []Unit {
	result := make([]Unit, 0, len(units))
	for _, unit := range units {
		if len([]rune(unit.Content)) < q.minChars || unit.Tokens < q.minTokens {
			continue
		}
		result = append(result, unit)
	}
	return result
}

func (q *QualityFilter) Name() string { return "quality-filter" }

func (q *QualityFilter) Order() int { return 40 }
