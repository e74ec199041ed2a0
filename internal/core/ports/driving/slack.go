package driving

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// SlackWebhook is a raw inbound request from Slack
type SlackWebhook struct {
	Body        []byte
	Signature   string // X-Slack-Signature
	Timestamp   string // X-Slack-Request-Timestamp
	ContentType string
}

// SlackAck is the synchronous response to a webhook.
// Body is serialised as JSON by the HTTP adapter.
type SlackAck struct {
	Outcome domain.DispatchOutcome
	Body    map[string]any
}

// SlackService handles the Slack webhook path
type SlackService interface {
	// HandleWebhook verifies and parses a request and dispatches any question
	// without waiting for it to be answered.
	// Verification failures return a *domain.RejectionError.
	HandleWebhook(ctx context.Context, req SlackWebhook) (*SlackAck, error)

	// Process answers a dispatched event and posts the reply.
	// Called by the worker, never on the request path.
	Process(ctx context.Context, event *domain.SlackEvent) (domain.PostOutcome, error)
}
