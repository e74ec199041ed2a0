package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Verify interface compliance
var _ driving.IngestionService = (*IngestionService)(nil)

// IngestionService turns stored objects into indexed chunks.
// It implements the ingestion pipeline:
//  1. Lock the document against concurrent re-ingestion
//  2. Fetch the object and record the document as PENDING
//  3. Extract page text
//  4. Chunk
//  5. Embed changed chunks with bounded fan-out and per-chunk retry
//  6. Upsert vectors by chunk id, then persist chunk metadata
//  7. Remove chunks the new version no longer has
//  8. Settle the document as INDEXED, PARTIAL or FAILED
type IngestionService struct {
	objects    driven.ObjectStore
	documents  driven.DocumentStore
	chunks     driven.ChunkStore
	extractors driven.ExtractorRegistry
	chunker    driven.Chunker
	embedder   driven.EmbeddingService
	index      driven.VectorIndex
	queue      driven.TaskQueue
	lock       driven.DistributedLock
	logger     *slog.Logger

	policy          RetryPolicy
	concurrency     int
	upsertBatchSize int
	lockTTL         time.Duration
	now             func() time.Time
}

// IngestionConfig holds dependencies for IngestionService.
type IngestionConfig struct {
	Objects    driven.ObjectStore
	Documents  driven.DocumentStore
	Chunks     driven.ChunkStore
	Extractors driven.ExtractorRegistry
	Chunker    driven.Chunker
	Embedder   driven.EmbeddingService
	Index      driven.VectorIndex
	Queue      driven.TaskQueue       // Optional: required only by Submit
	Lock       driven.DistributedLock // Optional: guards concurrent ingestion of one document
	Logger     *slog.Logger

	Retry           RetryPolicy
	Concurrency     int           // Embedding fan-out (default: 4)
	UpsertBatchSize int           // Records per index write (default: 64)
	LockTTL         time.Duration // default: 10m
	Now             func() time.Time
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(cfg IngestionConfig) *IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = 64
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &IngestionService{
		objects:         cfg.Objects,
		documents:       cfg.Documents,
		chunks:          cfg.Chunks,
		extractors:      cfg.Extractors,
		chunker:         cfg.Chunker,
		embedder:        cfg.Embedder,
		index:           cfg.Index,
		queue:           cfg.Queue,
		lock:            cfg.Lock,
		logger:          logger,
		policy:          cfg.Retry.withDefaults(),
		concurrency:     concurrency,
		upsertBatchSize: batch,
		lockTTL:         lockTTL,
		now:             now,
	}
}

// Submit enqueues an ingestion task and returns its id.
func (s *IngestionService) Submit(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" || domain.DocumentIDFromSource(source) == "" {
		return "", fmt.Errorf("%w: source is required", domain.ErrInvalidInput)
	}
	if s.queue == nil {
		return "", fmt.Errorf("%w: no task queue configured", domain.ErrServiceUnavailable)
	}
	task := domain.NewIngestTask(source)
	if err := s.queue.Enqueue(ctx, task); err != nil {
		return "", fmt.Errorf("enqueue ingestion: %w", err)
	}
	s.logger.Info("ingestion submitted", "source", source, "task_id", task.ID)
	return task.ID, nil
}

// Ingest runs the pipeline for one object reference.
// The returned document reflects the final status. A FAILED document is
// returned together with the error that caused it.
func (s *IngestionService) Ingest(ctx context.Context, source string) (*domain.Document, error) {
	source = strings.TrimSpace(source)
	docID := domain.DocumentIDFromSource(source)
	if docID == "" {
		return nil, fmt.Errorf("%w: source %q has no usable name", domain.ErrInvalidInput, source)
	}

	startTime := s.now()
	logger := s.logger.With("document_id", docID, "source", source)

	if s.lock != nil {
		lockName := "ingest:" + docID
		acquired, err := s.lock.Acquire(ctx, lockName, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire ingest lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrIngestionInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.lock.Release(releaseCtx, lockName); err != nil {
				logger.Warn("failed to release ingest lock", "error", err)
			}
		}()
	}

	// Step 1: Fetch the object
	obj, err := s.objects.Get(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}

	// Step 2: Record the document as PENDING
	doc, err := s.pendingDocument(ctx, docID, source, obj)
	if err != nil {
		return nil, err
	}
	logger.Info("ingestion started", "mime_type", doc.MimeType, "bytes", len(obj.Data))

	// Step 3: Extract
	extraction, err := s.extract(ctx, docID, doc.MimeType, obj.Data)
	if err != nil {
		return s.fail(ctx, doc, startTime, err)
	}
	if extraction.Title != "" {
		doc.Title = extraction.Title
	}
	doc.PageCount = len(extraction.Pages)

	// Step 4: Chunk
	chunks, err := s.chunker.Chunk(docID, extraction.Pages)
	if err != nil {
		return s.fail(ctx, doc, startTime, err)
	}

	previous, err := s.chunks.GetByDocument(ctx, docID)
	if err != nil {
		return s.fail(ctx, doc, startTime, fmt.Errorf("load previous chunks: %w", err))
	}
	prevHash := make(map[string]string, len(previous))
	for _, c := range previous {
		prevHash[c.ID] = c.ContentHash
	}

	// Step 5-6: Embed and index what changed
	now := s.now()
	var pending []*domain.Chunk
	unchanged := 0
	for _, c := range chunks {
		c.CreatedAt = now
		if h, ok := prevHash[c.ID]; ok && h == c.ContentHash {
			unchanged++
			continue
		}
		pending = append(pending, c)
	}
	metrics.ChunksProcessed.WithLabelValues("unchanged").Add(float64(unchanged))

	indexed, failed, err := s.embedAndIndex(ctx, doc, pending, logger)
	if err != nil {
		return s.fail(ctx, doc, startTime, err)
	}
	if len(indexed) > 0 {
		if err := s.chunks.SaveBatch(ctx, indexed); err != nil {
			return s.fail(ctx, doc, startTime, fmt.Errorf("save chunks: %w", err))
		}
	}

	// Step 7: Drop stale chunks. Trailing ids from a longer previous version
	// and failed chunks whose old content would otherwise keep answering.
	current := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		current[c.ID] = true
	}
	var stale []string
	for _, c := range previous {
		if !current[c.ID] || failed[c.ID] {
			stale = append(stale, c.ID)
		}
	}
	if len(stale) > 0 {
		if err := s.removeChunks(ctx, stale); err != nil {
			logger.Warn("failed to remove stale chunks", "count", len(stale), "error", err)
		} else {
			logger.Info("removed stale chunks", "count", len(stale))
		}
	}

	// Step 8: Settle status
	ok := len(indexed) + unchanged
	total := len(chunks)
	doc.ChunkCount = ok
	switch {
	case ok == total:
		doc.Status = domain.DocumentStatusIndexed
		doc.Error = ""
	case ok == 0:
		return s.fail(ctx, doc, startTime, fmt.Errorf("none of %d chunks could be indexed", total))
	default:
		doc.Status = domain.DocumentStatusPartial
		doc.Error = fmt.Sprintf("%d of %d chunks failed to index", total-ok, total)
	}
	doc.UpdatedAt = s.now()
	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	metrics.DocumentsIngested.WithLabelValues(string(doc.Status)).Inc()
	metrics.IngestionDuration.Observe(s.now().Sub(startTime).Seconds())
	logger.Info("ingestion completed",
		"status", doc.Status,
		"pages", doc.PageCount,
		"chunks", total,
		"embedded", len(indexed),
		"unchanged", unchanged,
		"duration", s.now().Sub(startTime),
	)

	return doc, nil
}

func (s *IngestionService) pendingDocument(ctx context.Context, docID, source string, obj *driven.Object) (*domain.Document, error) {
	now := s.now()
	sum := sha256.Sum256(obj.Data)

	doc, err := s.documents.Get(ctx, docID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		doc = &domain.Document{ID: docID, CreatedAt: now}
	case err != nil:
		return nil, fmt.Errorf("load document: %w", err)
	case doc.Source != "" && cleanSource(doc.Source) != cleanSource(source):
		return nil, fmt.Errorf("%w: source %q maps to document %s already ingested from %q",
			domain.ErrInvalidInput, source, docID, doc.Source)
	}

	doc.Source = source
	doc.MimeType = obj.MimeType
	doc.Checksum = hex.EncodeToString(sum[:])
	doc.Status = domain.DocumentStatusPending
	doc.Error = ""
	doc.UpdatedAt = now
	if doc.Title == "" {
		doc.Title = domain.TitleFromSource(source)
	}

	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// cleanSource normalises separators and dot segments so two spellings of
// the same object key compare equal.
func cleanSource(source string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(source, "\\", "/")), "/")
}

func (s *IngestionService) extract(ctx context.Context, docID, mimeType string, content []byte) (*driven.Extraction, error) {
	extractor := s.extractors.Get(mimeType)
	if extractor == nil {
		return nil, &domain.ExtractionError{
			DocumentID: docID,
			Err:        fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, mimeType),
		}
	}
	extraction, err := extractor.Extract(ctx, content)
	if err != nil {
		return nil, &domain.ExtractionError{DocumentID: docID, Err: err}
	}
	return extraction, nil
}

// embedAndIndex embeds chunks concurrently and writes the vectors in batches.
// Chunks whose embedding or index write is exhausted are reported in failed.
// Only context cancellation is returned as an error.
func (s *IngestionService) embedAndIndex(ctx context.Context, doc *domain.Document, chunks []*domain.Chunk, logger *slog.Logger) ([]*domain.Chunk, map[string]bool, error) {
	failed := make(map[string]bool)
	if len(chunks) == 0 {
		return nil, failed, nil
	}

	vectors := make([][]float32, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			vec, attempts, err := retry(gctx, s.policy, "embed", logger, func(ctx context.Context) ([]float32, error) {
				out, err := s.embedder.Embed(ctx, []string{c.Content})
				if err != nil {
					return nil, err
				}
				if len(out) != 1 || len(out[0]) == 0 {
					return nil, fmt.Errorf("embedding service returned %d vectors for 1 input", len(out))
				}
				return out[0], nil
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("skipping chunk after embedding failures",
					"chunk_index", c.Index,
					"attempts", attempts,
					"error", err,
				)
				metrics.ChunksProcessed.WithLabelValues("skipped").Inc()
				mu.Lock()
				failed[c.ID] = true
				mu.Unlock()
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var embedded []*domain.Chunk
	var records []driven.VectorRecord
	for i, c := range chunks {
		if vectors[i] == nil {
			continue
		}
		embedded = append(embedded, c)
		records = append(records, driven.VectorRecord{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Title:      doc.Title,
			Text:       c.Content,
			Page:       c.Page,
			ChunkIndex: c.Index,
			TokenCount: c.TokenCount,
			Vector:     vectors[i],
		})
	}

	var indexed []*domain.Chunk
	for start := 0; start < len(records); start += s.upsertBatchSize {
		end := min(start+s.upsertBatchSize, len(records))
		batch := records[start:end]
		_, attempts, err := retry(ctx, s.policy, "upsert", logger, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.index.Upsert(ctx, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("index write exhausted",
				"batch_start", start,
				"batch_size", len(batch),
				"attempts", attempts,
				"error", err,
			)
			metrics.ChunksProcessed.WithLabelValues("skipped").Add(float64(len(batch)))
			for _, c := range embedded[start:end] {
				failed[c.ID] = true
			}
			continue
		}
		metrics.ChunksProcessed.WithLabelValues("indexed").Add(float64(len(batch)))
		indexed = append(indexed, embedded[start:end]...)
	}

	return indexed, failed, nil
}

func (s *IngestionService) removeChunks(ctx context.Context, ids []string) error {
	if err := s.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}
	if err := s.chunks.DeleteBatch(ctx, ids); err != nil {
		return fmt.Errorf("delete chunk records: %w", err)
	}
	return nil
}

// fail settles the document as FAILED and returns it with cause.
func (s *IngestionService) fail(ctx context.Context, doc *domain.Document, startTime time.Time, cause error) (*domain.Document, error) {
	doc.Status = domain.DocumentStatusFailed
	doc.Error = cause.Error()
	doc.UpdatedAt = s.now()

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := s.documents.Save(saveCtx, doc); err != nil {
		s.logger.Error("failed to record document failure", "document_id", doc.ID, "error", err)
	}

	metrics.DocumentsIngested.WithLabelValues(string(domain.DocumentStatusFailed)).Inc()
	metrics.IngestionDuration.Observe(s.now().Sub(startTime).Seconds())
	s.logger.Error("ingestion failed", "document_id", doc.ID, "error", cause)

	return doc, cause
}

// IsPermanentIngestError reports whether retrying the ingestion cannot help:
// corrupt, unsupported or empty documents and bad references.
func IsPermanentIngestError(err error) bool {
	var extractErr *domain.ExtractionError
	var emptyErr *domain.EmptyDocumentError
	return errors.As(err, &extractErr) ||
		errors.As(err, &emptyErr) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNotFound)
}

// Rescan lists the object store and submits every object that is new,
// modified since its last ingestion, or left PARTIAL. It returns how many
// ingestions were submitted.
func (s *IngestionService) Rescan(ctx context.Context) (int, error) {
	objects, err := s.objects.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	submitted := 0
	for _, obj := range objects {
		docID := domain.DocumentIDFromSource(obj.Key)
		if docID == "" {
			continue
		}
		doc, err := s.documents.Get(ctx, docID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return submitted, fmt.Errorf("load document %s: %w", docID, err)
		case doc.Status == domain.DocumentStatusPartial:
		case obj.ModTime.After(doc.UpdatedAt):
		default:
			continue
		}
		if _, err := s.Submit(ctx, obj.Key); err != nil {
			return submitted, err
		}
		submitted++
	}

	s.logger.Info("rescan completed", "objects", len(objects), "submitted", submitted)
	return submitted, nil
}
