package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestDocumentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   DocumentStatus
		terminal bool
	}{
		{DocumentStatusPending, false},
		{DocumentStatusIndexed, true},
		{DocumentStatusPartial, true},
		{DocumentStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("expected %v, got %v", tt.terminal, got)
			}
		})
	}
}

func TestChunkID(t *testing.T) {
	a := ChunkID("retention-policy", 0)
	b := ChunkID("retention-policy", 0)
	c := ChunkID("retention-policy", 1)
	d := ChunkID("other", 0)

	if a != b {
		t.Error("expected chunk ids to be deterministic")
	}
	if a == c || a == d {
		t.Error("expected distinct ids for distinct chunks")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected a valid uuid, got %s: %v", a, err)
	}
}

func TestDocumentIDFromSource(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"policies/Retention Policy.pdf", "policies/retention-policy.pdf"},
		{"retention-policy.pdf", "retention-policy.pdf"},
		{`C:\docs\Travel_Guide (v2).md`, "c/docs/travel-guide-v2.md"},
		{"  notes.txt", "notes.txt"},
		{"./finance//policy.txt", "finance/policy.txt"},
		{"../README", "readme"},
		{"***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := DocumentIDFromSource(tt.source); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDocumentIDFromSource_DistinctObjects(t *testing.T) {
	sources := []string{"finance/policy.txt", "hr/policy.md", "hr/policy.txt", "policy.txt"}
	seen := make(map[string]string)
	for _, src := range sources {
		id := DocumentIDFromSource(src)
		if prev, ok := seen[id]; ok {
			t.Errorf("%s and %s share id %q", prev, src, id)
		}
		seen[id] = src
	}
}

func TestTitleFromSource(t *testing.T) {
	if got := TitleFromSource("policies/records_retention-policy.pdf"); got != "records retention policy" {
		t.Errorf("unexpected title %q", got)
	}
}
