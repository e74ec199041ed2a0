package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
	"github.com/custodia-labs/nexus/internal/runtime"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse lists dependency checks
// @Description Readiness with per-dependency results
type ReadyResponse struct {
	Status string                `json:"status" example:"ready"`
	Checks []runtime.CheckResult `json:"checks"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// DocumentListResponse wraps document summaries
// @Description Documents known to the catalog
type DocumentListResponse struct {
	Documents []*domain.DocumentSummary `json:"documents"`
	Total     int                       `json:"total"`
}

// SubmitDocumentRequest asks for a stored object to be ingested
// @Description Ingestion request
type SubmitDocumentRequest struct {
	Source string `json:"source" example:"policies/records-retention.pdf"`
}

// SubmitDocumentResponse acknowledges an ingestion request
// @Description Accepted ingestion task
type SubmitDocumentResponse struct {
	TaskID string `json:"task_id"`
	Source string `json:"source"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the catalog database, Redis, the queue and the vector index
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness == nil {
		writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: []runtime.CheckResult{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
	defer cancel()

	checks, ok := s.readiness.Ready(ctx)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Document endpoints

// handleListDocuments godoc
// @Summary      List documents
// @Description  Returns every known document with chunk count and status, newest first
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  DocumentListResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.catalog.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []*domain.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// handleSubmitDocument godoc
// @Summary      Ingest a document
// @Description  Queues a stored object for extraction, chunking and indexing
// @Tags         Documents
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SubmitDocumentRequest  true  "Object reference"
// @Success      202      {object}  SubmitDocumentResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "Document is already being ingested"
// @Failure      503      {object}  ErrorResponse
// @Router       /documents [post]
func (s *Server) handleSubmitDocument(w http.ResponseWriter, r *http.Request) {
	var req SubmitDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	taskID, err := s.ingestion.Submit(r.Context(), req.Source)
	if err != nil {
		s.writeDomainError(w, err, "failed to submit document")
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitDocumentResponse{TaskID: taskID, Source: req.Source})
}

// Query endpoint

// handleQuery godoc
// @Summary      Ask a question
// @Description  Retrieves relevant passages and composes a cited answer
// @Tags         Query
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.QueryRequest  true  "Question"
// @Success      200      {object}  domain.QueryResult
// @Failure      400      {object}  ErrorResponse  "Empty question or k out of range"
// @Failure      502      {object}  ErrorResponse  "Language model failed after retries"
// @Failure      503      {object}  ErrorResponse  "Embedding or index unavailable"
// @Router       /query [post]
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	result, err := s.query.Query(ctx, req)
	if err != nil {
		s.writeDomainError(w, err, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Slack endpoint

// handleSlack godoc
// @Summary      Slack webhook
// @Description  Receives slash commands and Events API callbacks, verifies the signature and acknowledges immediately
// @Tags         Slack
// @Accept       json,x-www-form-urlencoded
// @Produce      json
// @Param        X-Slack-Signature          header  string  true  "v0=<hex hmac>"
// @Param        X-Slack-Request-Timestamp  header  string  true  "Unix seconds"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  ErrorResponse  "Invalid request signature"
// @Failure      413  {object}  ErrorResponse
// @Router       /slack [post]
func (s *Server) handleSlack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ack, err := s.slack.HandleWebhook(r.Context(), driving.SlackWebhook{
		Body:        body,
		Signature:   r.Header.Get("X-Slack-Signature"),
		Timestamp:   r.Header.Get("X-Slack-Request-Timestamp"),
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		if _, rejected := domain.IsRejection(err); rejected {
			writeError(w, http.StatusUnauthorized, "Invalid request signature")
			return
		}
		s.writeDomainError(w, err, "failed to handle slack request")
		return
	}
	writeJSON(w, http.StatusOK, ack.Body)
}

// decodeJSON reads a size-limited JSON body into v. It writes the error
// response and returns false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDomainError maps service errors to status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var genErr *domain.GenerationError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrIngestionInProgress):
		writeError(w, http.StatusConflict, "document is already being ingested")
	case errors.As(err, &genErr):
		s.logger.Error("answer generation failed", "attempts", genErr.Attempts, "error", genErr.Err)
		writeError(w, http.StatusBadGateway, "answer generation failed")
	case errors.Is(err, domain.ErrServiceUnavailable):
		s.logger.Error("dependency unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
