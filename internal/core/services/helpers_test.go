package services

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/nexus/internal/adapters/driven/memory"
	"github.com/custodia-labs/nexus/internal/chunking"
	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/nexus/internal/extractors"
)

const retentionSource = "policies/records-retention-policy.txt"

// retentionPages is a four page policy; only page 3 covers board minutes.
var retentionPages = []string{
	"Records Retention Policy\n\nPurpose and Scope. This policy establishes how Custodia Labs creates, stores, and disposes of business records. " +
		"It applies to every employee, contractor, and temporary worker who handles company information in any format, including paper files, " +
		"email, chat transcripts, and documents kept in shared drives. Department heads are responsible for making sure their teams understand " +
		"the policy and follow it consistently. Questions about interpretation should be directed to the Legal and Compliance team before any records are destroyed.",
	"Financial Records. Invoices, receipts, bank statements, payroll registers, and general ledger entries must be kept for seven years from the end " +
		"of the fiscal year in which they were created. Tax filings and supporting workpapers follow the same schedule unless the tax authority requests " +
		"a longer hold. Finance stores these records in the accounting system and exports a quarterly archive to encrypted cold storage so that auditors " +
		"can review historical transactions without disturbing production systems.",
	"Corporate Governance. Board meeting minutes, board resolutions, and committee minutes must be retained for a minimum retention period of ten years " +
		"from the date of the meeting, after which they move to the permanent archive. The Corporate Secretary keeps the signed originals of all board meeting " +
		"minutes in the governance archive and uploads a scanned copy within five business days of approval. Minutes of annual shareholder meetings follow " +
		"the same rule and may never be destroyed without written approval.",
	"Employee Records. Personnel files, performance reviews, training certificates, and benefits enrollment forms are kept for six years after an employee " +
		"leaves the company. Medical information is stored separately from the personnel file with restricted access limited to Human Resources. Recruiting " +
		"materials for candidates who were not hired are deleted after two years unless the candidate agreed to remain in the talent pool. Managers must never " +
		"keep private copies of personnel documents on laptops or personal devices.",
}

const retentionQuestion = "What is the minimum retention period for board meeting minutes?"

func retentionText(pages []string) []byte {
	return []byte(strings.Join(pages, "\f"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ingestionFixture struct {
	objects   *mocks.MockObjectStore
	chunks    *memory.ChunkStore
	documents *memory.DocumentStore
	embedder  *mocks.MockEmbeddingService
	index     *mocks.MockVectorIndex
	queue     *mocks.MockTaskQueue
	lock      *memory.Lock
	svc       *IngestionService
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		objects:  mocks.NewMockObjectStore(),
		chunks:   memory.NewChunkStore(),
		embedder: mocks.NewMockEmbeddingService(),
		index:    mocks.NewMockVectorIndex(),
		queue:    mocks.NewMockTaskQueue(),
		lock:     memory.NewLock(),
	}
	f.documents = memory.NewDocumentStore(f.chunks)

	registry := extractors.NewRegistry()
	registry.Register(extractors.NewTextExtractor())
	registry.Register(extractors.NewMarkdownExtractor())

	f.svc = NewIngestionService(IngestionConfig{
		Objects:    f.objects,
		Documents:  f.documents,
		Chunks:     f.chunks,
		Extractors: registry,
		Chunker:    chunking.New(chunking.DefaultConfig()),
		Embedder:   f.embedder,
		Index:      f.index,
		Queue:      f.queue,
		Lock:       f.lock,
		Logger:     discardLogger(),
		Retry:      fastPolicy(2),
	})
	return f
}

func newRetrievalFixture(index *mocks.MockVectorIndex, minScore float64) *RetrievalService {
	return NewRetrievalService(RetrievalConfig{
		Embedder: mocks.NewMockEmbeddingService(),
		Index:    index,
		Logger:   discardLogger(),
		MinScore: minScore,
		Retry:    fastPolicy(2),
	})
}

func passage(doc, title string, page int, score float64, text string) domain.RetrievedPassage {
	return domain.RetrievedPassage{
		ChunkID:    domain.ChunkID(doc, page),
		DocumentID: doc,
		Title:      title,
		Page:       page,
		Score:      score,
		Text:       text,
		TokenCount: chunking.CountTokens(text),
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
