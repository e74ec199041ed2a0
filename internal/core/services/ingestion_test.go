package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

func TestIngestionService_IngestIndexesEveryPage(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))

	doc, err := f.svc.Ingest(context.Background(), retentionSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "policies/records-retention-policy.txt" {
		t.Errorf("expected id policies/records-retention-policy.txt, got %s", doc.ID)
	}
	if doc.Status != domain.DocumentStatusIndexed {
		t.Errorf("expected INDEXED, got %s (%s)", doc.Status, doc.Error)
	}
	if doc.Title != "Records Retention Policy" {
		t.Errorf("expected title from first line, got %q", doc.Title)
	}
	if doc.PageCount != 4 || doc.ChunkCount != 4 {
		t.Errorf("expected 4 pages and 4 chunks, got %d and %d", doc.PageCount, doc.ChunkCount)
	}
	if doc.Checksum == "" {
		t.Error("expected checksum to be recorded")
	}
	if f.index.Len() != 4 {
		t.Errorf("expected 4 vectors, got %d", f.index.Len())
	}

	stored, err := f.chunks.GetByDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range stored {
		if c.Index != i || c.Page != i+1 {
			t.Errorf("chunk %d: got index %d page %d", i, c.Index, c.Page)
		}
		rec, ok := f.index.Record(c.ID)
		if !ok {
			t.Errorf("chunk %d missing from index", i)
			continue
		}
		if rec.Title != doc.Title || rec.Page != c.Page {
			t.Errorf("chunk %d: unexpected record %+v", i, rec)
		}
	}
	if f.lock.IsHeld("ingest:" + doc.ID) {
		t.Error("expected ingest lock to be released")
	}
}

func TestIngestionService_ReingestSkipsUnchangedChunks(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, retentionSource); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	callsAfterFirst := f.embedder.Calls()

	changed := append([]string(nil), retentionPages...)
	changed[1] = strings.Replace(changed[1], "seven years", "eight years", 1)
	f.objects.Put(retentionSource, "text/plain", retentionText(changed))

	doc, err := f.svc.Ingest(ctx, retentionSource)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if doc.Status != domain.DocumentStatusIndexed || doc.ChunkCount != 4 {
		t.Errorf("expected INDEXED with 4 chunks, got %s with %d", doc.Status, doc.ChunkCount)
	}
	if got := f.embedder.Calls() - callsAfterFirst; got != 1 {
		t.Errorf("expected only the changed chunk to be embedded, got %d calls", got)
	}
	rec, _ := f.index.Record(domain.ChunkID(doc.ID, 1))
	if !strings.Contains(rec.Text, "eight years") {
		t.Errorf("expected updated text in index, got %q", rec.Text)
	}
}

func TestIngestionService_ReingestIdenticalContentIsIdempotent(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	ctx := context.Background()

	first, err := f.svc.Ingest(ctx, retentionSource)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	upserts, calls := f.index.Upserts(), f.embedder.Calls()

	second, err := f.svc.Ingest(ctx, retentionSource)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.ID != first.ID || second.Status != domain.DocumentStatusIndexed || second.ChunkCount != first.ChunkCount {
		t.Errorf("expected the same INDEXED document, got %+v", second)
	}
	if got := f.index.Upserts() - upserts; got != 0 {
		t.Errorf("expected no new upserts, got %d", got)
	}
	if got := f.embedder.Calls() - calls; got != 0 {
		t.Errorf("expected no embedding calls, got %d", got)
	}
	if f.index.Len() != first.ChunkCount {
		t.Errorf("expected %d vectors, got %d", first.ChunkCount, f.index.Len())
	}
	for i := 0; i < first.ChunkCount; i++ {
		if _, ok := f.index.Record(domain.ChunkID(first.ID, i)); !ok {
			t.Errorf("chunk %d missing from index", i)
		}
	}
}

func TestIngestionService_SameNameInDifferentFolders(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	f.objects.Put("finance/policy.txt", "text/plain", retentionText(retentionPages))
	f.objects.Put("hr/policy.md", "text/plain", retentionText(retentionPages[:2]))

	finance, err := f.svc.Ingest(ctx, "finance/policy.txt")
	if err != nil {
		t.Fatalf("finance ingest: %v", err)
	}
	hr, err := f.svc.Ingest(ctx, "hr/policy.md")
	if err != nil {
		t.Fatalf("hr ingest: %v", err)
	}
	if finance.ID == hr.ID {
		t.Fatalf("expected distinct ids, both are %q", hr.ID)
	}

	if n, _ := f.documents.Count(ctx); n != 2 {
		t.Errorf("expected 2 catalog entries, got %d", n)
	}
	if want := finance.ChunkCount + hr.ChunkCount; f.index.Len() != want {
		t.Errorf("expected %d vectors, got %d", want, f.index.Len())
	}
	rec, ok := f.index.Record(domain.ChunkID(finance.ID, 2))
	if !ok || !strings.Contains(rec.Text, "Board meeting minutes") {
		t.Errorf("expected the governance chunk to survive, got %q", rec.Text)
	}
}

func TestIngestionService_RejectsSourceCollision(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	f.objects.Put("hr/Policy.txt", "text/plain", retentionText(retentionPages))
	f.objects.Put("hr/policy.txt", "text/plain", retentionText(retentionPages[:1]))

	first, err := f.svc.Ingest(ctx, "hr/Policy.txt")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	_, err = f.svc.Ingest(ctx, "hr/policy.txt")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !IsPermanentIngestError(err) {
		t.Error("a colliding source should not be retried")
	}

	stored, err := f.documents.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored.Source != "hr/Policy.txt" || stored.Status != domain.DocumentStatusIndexed {
		t.Errorf("expected the first document untouched, got %s %s", stored.Source, stored.Status)
	}
	if f.index.Len() != first.ChunkCount {
		t.Errorf("expected %d vectors, got %d", first.ChunkCount, f.index.Len())
	}

	f.objects.Put("./hr//Policy.txt", "text/plain", retentionText(retentionPages))
	if _, err := f.svc.Ingest(ctx, "./hr//Policy.txt"); err != nil {
		t.Errorf("expected another spelling of the same key to be accepted, got %v", err)
	}
}

func TestIngestionService_ShorterVersionRemovesTrailingChunks(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	ctx := context.Background()

	if _, err := f.svc.Ingest(ctx, retentionSource); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages[:2]))
	doc, err := f.svc.Ingest(ctx, retentionSource)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if doc.ChunkCount != 2 {
		t.Errorf("expected 2 chunks, got %d", doc.ChunkCount)
	}
	if f.index.Len() != 2 {
		t.Errorf("expected trailing vectors removed, index has %d", f.index.Len())
	}
	stored, _ := f.chunks.GetByDocument(ctx, doc.ID)
	if len(stored) != 2 {
		t.Errorf("expected 2 stored chunks, got %d", len(stored))
	}
}

func TestIngestionService_PartialWhenSomeChunksFail(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))

	f.embedder.EmbedFn = func(ctx context.Context, texts []string) ([][]float32, error) {
		if strings.Contains(texts[0], "Employee Records") {
			return nil, errors.New("provider overloaded")
		}
		return [][]float32{{0.1, 0.2, 0.3}}, nil
	}

	doc, err := f.svc.Ingest(context.Background(), retentionSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != domain.DocumentStatusPartial {
		t.Fatalf("expected PARTIAL, got %s", doc.Status)
	}
	if doc.ChunkCount != 3 {
		t.Errorf("expected 3 indexed chunks, got %d", doc.ChunkCount)
	}
	if doc.Error != "1 of 4 chunks failed to index" {
		t.Errorf("unexpected error text %q", doc.Error)
	}
	if _, ok := f.index.Record(domain.ChunkID(doc.ID, 3)); ok {
		t.Error("failed chunk should not be indexed")
	}
}

func TestIngestionService_FailsWhenEveryChunkFails(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	f.index.UpsertFn = func(records []driven.VectorRecord) error {
		return errors.New("index unavailable")
	}

	doc, err := f.svc.Ingest(context.Background(), retentionSource)
	if err == nil {
		t.Fatal("expected error")
	}
	if doc == nil || doc.Status != domain.DocumentStatusFailed {
		t.Fatalf("expected FAILED document, got %+v", doc)
	}
	saved, _ := f.documents.Get(context.Background(), doc.ID)
	if saved.Status != domain.DocumentStatusFailed || saved.Error == "" {
		t.Errorf("expected failure to be persisted, got %+v", saved)
	}
}

func TestIngestionService_UpsertRetriedBeforeGivingUp(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))

	var calls atomic.Int32
	f.index.UpsertFn = func(records []driven.VectorRecord) error {
		if calls.Add(1) == 1 {
			return errors.New("timeout")
		}
		return nil
	}

	doc, err := f.svc.Ingest(context.Background(), retentionSource)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != domain.DocumentStatusIndexed {
		t.Errorf("expected INDEXED after retry, got %s", doc.Status)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 upsert calls, got %d", calls.Load())
	}
}

func TestIngestionService_UnsupportedFormat(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put("scans/board.tiff", "image/tiff", []byte{0x49, 0x49, 0x2a, 0x00})

	doc, err := f.svc.Ingest(context.Background(), "scans/board.tiff")
	var extractErr *domain.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat in chain, got %v", err)
	}
	if doc.Status != domain.DocumentStatusFailed {
		t.Errorf("expected FAILED, got %s", doc.Status)
	}
	if !IsPermanentIngestError(err) {
		t.Error("expected extraction failure to be permanent")
	}
}

func TestIngestionService_EmptyDocument(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put("notes/blank.txt", "text/plain", []byte("   \n\n  "))

	doc, err := f.svc.Ingest(context.Background(), "notes/blank.txt")
	var emptyErr *domain.EmptyDocumentError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptyDocumentError, got %v", err)
	}
	if doc.Status != domain.DocumentStatusFailed {
		t.Errorf("expected FAILED, got %s", doc.Status)
	}
	if f.index.Len() != 0 {
		t.Errorf("expected nothing indexed, got %d", f.index.Len())
	}
}

func TestIngestionService_MissingObject(t *testing.T) {
	f := newIngestionFixture()

	_, err := f.svc.Ingest(context.Background(), "policies/missing.pdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !IsPermanentIngestError(err) {
		t.Error("expected missing object to be permanent")
	}
}

func TestIngestionService_LockHeld(t *testing.T) {
	f := newIngestionFixture()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	ctx := context.Background()

	if ok, _ := f.lock.Acquire(ctx, "ingest:policies/records-retention-policy.txt", time.Minute); !ok {
		t.Fatal("expected to acquire lock")
	}

	_, err := f.svc.Ingest(ctx, retentionSource)
	if !errors.Is(err, domain.ErrIngestionInProgress) {
		t.Fatalf("expected ErrIngestionInProgress, got %v", err)
	}
	if IsPermanentIngestError(err) {
		t.Error("lock contention should be retried")
	}
}

func TestIngestionService_Submit(t *testing.T) {
	f := newIngestionFixture()

	id, err := f.svc.Submit(context.Background(), " "+retentionSource+" ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks := f.queue.Tasks()
	if len(tasks) != 1 || tasks[0].ID != id {
		t.Fatalf("expected one queued task %s, got %v", id, tasks)
	}
	if tasks[0].Type != domain.TaskTypeIngestDocument || tasks[0].Source() != retentionSource {
		t.Errorf("unexpected task %+v", tasks[0])
	}

	if _, err := f.svc.Submit(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty source, got %v", err)
	}
}

func TestIngestionService_SubmitWithoutQueue(t *testing.T) {
	svc := NewIngestionService(IngestionConfig{Logger: discardLogger()})
	if _, err := svc.Submit(context.Background(), retentionSource); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestIngestionService_Rescan(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	f.objects.Put(retentionSource, "text/plain", retentionText(retentionPages))
	f.objects.Put("policies/travel.md", "text/markdown", []byte("# Travel\n\nBook travel through the portal."))

	if _, err := f.svc.Ingest(ctx, retentionSource); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	submitted, err := f.svc.Rescan(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submitted != 1 {
		t.Fatalf("expected only the new object to be submitted, got %d", submitted)
	}
	if got := f.queue.Tasks()[0].Source(); got != "policies/travel.md" {
		t.Errorf("expected travel.md to be submitted, got %s", got)
	}
}

func TestIsPermanentIngestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"extraction", &domain.ExtractionError{DocumentID: "d", Err: errors.New("corrupt")}, true},
		{"empty", &domain.EmptyDocumentError{DocumentID: "d"}, true},
		{"invalid input", domain.ErrInvalidInput, true},
		{"not found", domain.ErrNotFound, true},
		{"in progress", domain.ErrIngestionInProgress, false},
		{"provider", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanentIngestError(tt.err); got != tt.want {
				t.Errorf("IsPermanentIngestError() = %v, want %v", got, tt.want)
			}
		})
	}
}
