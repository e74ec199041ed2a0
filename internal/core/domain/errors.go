package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenExpired indicates the API token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrServiceUnavailable indicates a provider could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrIngestionInProgress indicates another worker holds the document
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	// ErrNoRelevantPassages indicates retrieval found nothing above the relevance threshold.
	// It is a normal outcome, not a provider failure.
	ErrNoRelevantPassages = errors.New("no relevant passages")

	// ErrUnsupportedFormat indicates no extractor handles the document's mime type
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDuplicateDelivery indicates a webhook delivery id was already seen in the dedup window
	ErrDuplicateDelivery = errors.New("duplicate delivery")

	// ErrInvalidProvider indicates an unknown AI provider in configuration
	ErrInvalidProvider = errors.New("invalid AI provider")

	// ErrDimensionMismatch indicates a provider returned vectors of the wrong size
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ExtractionError reports a corrupt or unsupported document.
type ExtractionError struct {
	DocumentID string
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.DocumentID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmptyDocumentError reports a document with no extractable text.
type EmptyDocumentError struct {
	DocumentID string
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("document %s has no extractable text", e.DocumentID)
}

// GenerationError reports that the language model could not produce an answer
// after all retry attempts.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RejectionReason explains why a signed webhook request was refused
type RejectionReason string

const (
	RejectionSignature RejectionReason = "signature"
	RejectionReplay    RejectionReason = "replay"
	RejectionMalformed RejectionReason = "malformed"
)

// RejectionError is returned by webhook verification.
type RejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "webhook rejected: " + string(e.Reason)
	}
	return fmt.Sprintf("webhook rejected: %s (%s)", e.Reason, e.Detail)
}

// IsRejection reports whether err is a webhook rejection and returns its reason.
func IsRejection(err error) (RejectionReason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
