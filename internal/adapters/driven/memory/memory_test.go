package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

func TestChunkStore(t *testing.T) {
	ctx := context.Background()
	s := NewChunkStore()

	chunks := []*domain.Chunk{
		{ID: "c2", DocumentID: "doc", Index: 1, Content: "second", Embedding: []float32{1}},
		{ID: "c1", DocumentID: "doc", Index: 0, Content: "first"},
		{ID: "x1", DocumentID: "other", Index: 0, Content: "other"},
	}
	if err := s.SaveBatch(ctx, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetByDocument(ctx, "doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Fatalf("expected chunks ordered by index, got %+v", got)
	}
	if got[1].Embedding != nil {
		t.Error("expected embeddings not to be stored")
	}

	// Overwrite by ID
	_ = s.SaveBatch(ctx, []*domain.Chunk{{ID: "c1", DocumentID: "doc", Index: 0, Content: "changed"}})
	got, _ = s.GetByDocument(ctx, "doc")
	if got[0].Content != "changed" {
		t.Errorf("expected overwrite, got %q", got[0].Content)
	}

	_ = s.DeleteBatch(ctx, []string{"c2", "missing"})
	got, _ = s.GetByDocument(ctx, "doc")
	if len(got) != 1 {
		t.Errorf("expected 1 chunk after delete, got %d", len(got))
	}

	_ = s.DeleteByDocument(ctx, "doc")
	got, _ = s.GetByDocument(ctx, "doc")
	if len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	other, _ := s.GetByDocument(ctx, "other")
	if len(other) != 1 {
		t.Errorf("expected other document untouched, got %d", len(other))
	}
}

func TestDocumentStore_ListSummaries(t *testing.T) {
	ctx := context.Background()
	chunks := NewChunkStore()
	docs := NewDocumentStore(chunks)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = docs.Save(ctx, &domain.Document{ID: "b", Title: "B", Status: domain.DocumentStatusIndexed, UpdatedAt: base})
	_ = docs.Save(ctx, &domain.Document{ID: "a", Title: "A", Status: domain.DocumentStatusPartial, UpdatedAt: base})
	_ = docs.Save(ctx, &domain.Document{ID: "c", Title: "C", Status: domain.DocumentStatusFailed, UpdatedAt: base.Add(time.Hour)})
	_ = chunks.SaveBatch(ctx, []*domain.Chunk{
		{ID: "1", DocumentID: "a"}, {ID: "2", DocumentID: "a"}, {ID: "3", DocumentID: "b"},
	})

	summaries, err := docs.ListSummaries(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}

	order := []string{summaries[0].ID, summaries[1].ID, summaries[2].ID}
	if order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Errorf("expected order [c a b], got %v", order)
	}
	if summaries[1].ChunkCount != 2 || summaries[2].ChunkCount != 1 || summaries[0].ChunkCount != 0 {
		t.Errorf("unexpected chunk counts: %d %d %d", summaries[0].ChunkCount, summaries[1].ChunkCount, summaries[2].ChunkCount)
	}

	count, _ := docs.Count(ctx)
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestDocumentStore_GetNotFound(t *testing.T) {
	_, err := NewDocumentStore(nil).Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeliveryStore_ClaimAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewDeliveryStore().WithClock(func() time.Time { return now })

	ok, err := s.Claim(ctx, "Ev1", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim to succeed, got %v %v", ok, err)
	}
	ok, _ = s.Claim(ctx, "Ev1", 5*time.Minute)
	if ok {
		t.Fatal("expected duplicate claim to fail")
	}

	state, _ := s.State(ctx, "Ev1")
	if state != domain.DeliveryReceived {
		t.Errorf("expected RECEIVED, got %s", state)
	}
	if err := s.SetState(ctx, "Ev1", domain.DeliveryVerified); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	now = now.Add(6 * time.Minute)
	if _, err := s.State(ctx, "Ev1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected expired entry, got %v", err)
	}
	ok, _ = s.Claim(ctx, "Ev1", 5*time.Minute)
	if !ok {
		t.Error("expected claim after expiry to succeed")
	}
}

func TestDeliveryStore_ReleaseAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewDeliveryStore().WithClock(func() time.Time { return now })

	_, _ = s.Claim(ctx, "a", time.Minute)
	_, _ = s.Claim(ctx, "b", time.Hour)
	_ = s.Release(ctx, "a")

	if ok, _ := s.Claim(ctx, "a", time.Minute); !ok {
		t.Error("expected released id to be claimable")
	}

	now = now.Add(2 * time.Minute)
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("expected 1 swept entry, got %d", removed)
	}
	if err := s.SetState(ctx, "a", domain.DeliveryVerified); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for swept entry, got %v", err)
	}
}

func TestLock(t *testing.T) {
	ctx := context.Background()
	l := NewLock()

	ok, _ := l.Acquire(ctx, "ingest:doc", time.Minute)
	if !ok {
		t.Fatal("expected to acquire lock")
	}
	ok, _ = l.Acquire(ctx, "ingest:doc", time.Minute)
	if ok {
		t.Fatal("expected second acquire to fail")
	}
	if err := l.Extend(ctx, "ingest:doc", time.Hour); err != nil {
		t.Errorf("unexpected extend error: %v", err)
	}

	_ = l.Release(ctx, "ingest:doc")
	if l.IsHeld("ingest:doc") {
		t.Error("expected lock to be released")
	}
	if err := l.Extend(ctx, "ingest:doc", time.Hour); err == nil {
		t.Error("expected extend of released lock to fail")
	}
}
