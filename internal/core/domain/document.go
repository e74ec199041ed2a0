package domain

import (
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DocumentStatus tracks where a document is in the ingestion lifecycle
type DocumentStatus string

const (
	DocumentStatusPending DocumentStatus = "PENDING"
	DocumentStatusIndexed DocumentStatus = "INDEXED"
	DocumentStatusPartial DocumentStatus = "PARTIAL"
	DocumentStatusFailed  DocumentStatus = "FAILED"
)

// IsTerminal reports whether ingestion has finished for this status.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusIndexed || s == DocumentStatusPartial || s == DocumentStatusFailed
}

// Document represents a source document known to the catalog
type Document struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"` // Object reference the document was ingested from
	Title      string         `json:"title"`
	MimeType   string         `json:"mime_type"`
	PageCount  int            `json:"page_count"`
	ChunkCount int            `json:"chunk_count"`
	Checksum   string         `json:"checksum"` // sha256 of the raw bytes
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Page is the extracted text of one page of a document.
// Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Chunk represents an indexed unit of document text
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Index       int       `json:"index"` // 0-based, stable across re-ingestion
	Content     string    `json:"content"`
	TokenCount  int       `json:"token_count"`
	Page        int       `json:"page"`     // First page the chunk was taken from
	PageEnd     int       `json:"page_end"` // Last page, equal to Page for single-page chunks
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentSummary is the catalog view of a document
type DocumentSummary struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	ChunkCount  int            `json:"chunk_count"`
	PageCount   int            `json:"page_count"`
	Status      DocumentStatus `json:"status"`
	LastUpdated time.Time      `json:"last_updated"`
}

// chunkNamespace scopes chunk ids so they never collide with ids minted elsewhere.
var chunkNamespace = uuid.MustParse("5b0e6c2a-1f4d-4a51-9d8e-6f2f3c7a9b10")

// ChunkID returns the deterministic id of the chunk at index within a document.
// The result is a valid UUID so it can be used as a vector point id directly.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(index))).String()
}

// DocumentIDFromSource derives a document id from an object reference. The
// folder path and extension are kept so distinct objects get distinct ids:
// "policies/Retention Policy.pdf" becomes "policies/retention-policy.pdf".
func DocumentIDFromSource(source string) string {
	var segments []string
	for _, seg := range strings.Split(strings.ReplaceAll(source, "\\", "/"), "/") {
		if s := slugSegment(seg); s != "" {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, "/")
}

// slugSegment lowercases one path segment, keeps letters, digits and dots,
// and collapses every other run of characters into a single dash.
func slugSegment(seg string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(seg) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 && !strings.HasSuffix(b.String(), ".") {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		case r == '.':
			dash = false
			if b.Len() > 0 {
				b.WriteByte('.')
			}
		default:
			dash = true
		}
	}
	return strings.Trim(b.String(), ".")
}

// TitleFromSource builds a readable title from an object reference.
func TitleFromSource(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
