package chunking

import (
	"sort"
	"strings"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// Unit is a span of document text moving through the pipeline.
type Unit struct {
	Content string
	Page    int // First source page
	PageEnd int // Last source page
	Tokens  int
}

func newUnit(content string, page, pageEnd int) Unit {
	return Unit{Content: content, Page: page, PageEnd: pageEnd, Tokens: CountTokens(content)}
}

// Stage transforms the units produced by the previous stage.
// Stages must be deterministic: the same input always yields the same output.
type Stage interface {
	// Process applies the stage to units.
	Process(units []Unit) []Unit

	// Name returns the stage name for logging/debugging.
	Name() string

	// Order returns the stage order in the pipeline (lower = earlier).
	Order() int
}

// Pipeline chains stages in order. It is immutable after construction
// and safe for concurrent use.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from stages, sorted by Order().
func NewPipeline(stages ...Stage) *Pipeline {
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order() < sorted[j].Order()
	})
	return &Pipeline{stages: sorted}
}

// Process runs pages through every stage. Each page starts as one unit.
func (p *Pipeline) Process(pages []domain.Page) []Unit {
	units := make([]Unit, 0, len(pages))
	for _, page := range pages {
		units = append(units, newUnit(page.Text, page.Number, page.Number))
	}

	for _, stage := range p.stages {
		units = stage.Process(units)
	}
	return units
}

// List returns stage names in order.
func (p *Pipeline) List() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}

// CountTokens approximates the token count of text as its number of
// whitespace-separated words.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
