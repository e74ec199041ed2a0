// Package chromem keeps chunk vectors in an embedded chromem-go database,
// in memory or persisted to a directory. It serves single-node deployments
// and tests.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*Index)(nil)

const (
	metaDocumentID = "document_id"
	metaTitle      = "title"
	metaPage       = "page"
	metaChunkIndex = "chunk_index"
	metaTokenCount = "token_count"
)

// Config selects where the database lives.
type Config struct {
	// Path persists the database under a directory; empty keeps it in memory
	Path       string
	Compress   bool
	Collection string
}

// Index implements VectorIndex on one chromem collection.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// errNoEmbedder is returned if chromem is ever asked to embed text itself.
// Vectors always come from the configured embedding service.
var errNoEmbedder = errors.New("chromem index stores precomputed vectors only")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedder
}

// New opens or creates the database and collection.
func New(cfg Config) (*Index, error) {
	if cfg.Collection == "" {
		cfg.Collection = "nexus_chunks"
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %s: %w", cfg.Path, err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", cfg.Collection, err)
	}
	return &Index{db: db, collection: collection}, nil
}

// Upsert writes records; an existing id is overwritten.
func (i *Index) Upsert(ctx context.Context, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for n, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s has no vector", domain.ErrInvalidInput, r.ID)
		}
		docs[n] = chromem.Document{
			ID:        r.ID,
			Content:   r.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				metaDocumentID: r.DocumentID,
				metaTitle:      r.Title,
				metaPage:       strconv.Itoa(r.Page),
				metaChunkIndex: strconv.Itoa(r.ChunkIndex),
				metaTokenCount: strconv.Itoa(r.TokenCount),
			},
		}
	}
	if err := i.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	return nil
}

// Search returns up to k nearest records. chromem rejects k above the
// collection size, so k is capped at Count.
func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]driven.VectorMatch, error) {
	count := i.collection.Count()
	if k <= 0 || count == 0 {
		return []driven.VectorMatch{}, nil
	}
	if k > count {
		k = count
	}

	results, err := i.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]driven.VectorMatch, len(results))
	for n, r := range results {
		matches[n] = driven.VectorMatch{
			Record: driven.VectorRecord{
				ID:         r.ID,
				DocumentID: r.Metadata[metaDocumentID],
				Title:      r.Metadata[metaTitle],
				Text:       r.Content,
				Page:       atoi(r.Metadata[metaPage]),
				ChunkIndex: atoi(r.Metadata[metaChunkIndex]),
				TokenCount: atoi(r.Metadata[metaTokenCount]),
			},
			Score: clampScore(r.Similarity),
		}
	}
	return matches, nil
}

// clampScore maps cosine similarity onto the 0-1 relevance scale; opposed
// vectors score 0.
func clampScore(sim float32) float64 {
	return math.Max(0, math.Min(1, float64(sim)))
}

// Delete removes records by id.
func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := i.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete %d documents: %w", len(ids), err)
	}
	return nil
}

// DeleteByDocument removes every record of a document.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id required", domain.ErrInvalidInput)
	}
	if err := i.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// Count returns how many records are stored.
func (i *Index) Count() int {
	return i.collection.Count()
}

// HealthCheck always succeeds; the database is in-process.
func (i *Index) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op. Persistent databases write through on every change.
func (i *Index) Close() error {
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
