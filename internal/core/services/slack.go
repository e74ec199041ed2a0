package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driving"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Verify interface compliance
var _ driving.SlackService = (*SlackService)(nil)

// SlackService runs both halves of the Slack path: the synchronous webhook
// acknowledgment and the asynchronous answer.
type SlackService struct {
	verifier   *Verifier
	parser     *SlackParser
	dispatcher *Dispatcher
	query      driving.QueryService
	poster     *Poster
	logger     *slog.Logger
}

// SlackServiceConfig holds dependencies for SlackService.
type SlackServiceConfig struct {
	Verifier   *Verifier
	Parser     *SlackParser
	Dispatcher *Dispatcher
	Query      driving.QueryService
	Poster     *Poster
	Logger     *slog.Logger
}

// NewSlackService creates a new Slack service.
func NewSlackService(cfg SlackServiceConfig) *SlackService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parser := cfg.Parser
	if parser == nil {
		parser = NewSlackParser("", nil)
	}
	return &SlackService{
		verifier:   cfg.Verifier,
		parser:     parser,
		dispatcher: cfg.Dispatcher,
		query:      cfg.Query,
		poster:     cfg.Poster,
		logger:     logger,
	}
}

// HandleWebhook verifies the request before looking at its content, so an
// unsigned url_verification is rejected like any other request.
func (s *SlackService) HandleWebhook(ctx context.Context, req driving.SlackWebhook) (*driving.SlackAck, error) {
	if err := s.verifier.Verify(req.Body, req.Signature, req.Timestamp); err != nil {
		reason, _ := domain.IsRejection(err)
		metrics.SlackDeliveries.WithLabelValues(string(domain.DispatchRejected)).Inc()
		s.logger.Warn("slack request rejected", "reason", reason)
		return &driving.SlackAck{
			Outcome: domain.DispatchRejected,
			Body:    map[string]any{"error": "Invalid request signature"},
		}, err
	}

	parsed, err := s.parser.Parse(req.Body, req.ContentType, req.Signature, req.Timestamp)
	if err != nil {
		return nil, err
	}

	switch r := parsed.(type) {
	case domain.URLVerification:
		metrics.SlackDeliveries.WithLabelValues("challenge").Inc()
		return &driving.SlackAck{
			Outcome: domain.DispatchAccepted,
			Body:    map[string]any{"challenge": r.Challenge},
		}, nil

	case domain.ImmediateReply:
		metrics.SlackDeliveries.WithLabelValues("immediate").Inc()
		return &driving.SlackAck{
			Outcome: domain.DispatchAccepted,
			Body:    map[string]any{"response_type": r.ResponseType, "text": r.Text},
		}, nil

	case domain.IgnoredRequest:
		metrics.SlackDeliveries.WithLabelValues("ignored").Inc()
		s.logger.Debug("slack request ignored", "reason", r.Reason)
		return &driving.SlackAck{
			Outcome: domain.DispatchAccepted,
			Body:    map[string]any{"ok": true},
		}, nil

	case domain.DispatchRequest:
		outcome, err := s.dispatcher.Dispatch(ctx, r.Event)
		if err != nil {
			return nil, err
		}
		ack := &driving.SlackAck{Outcome: outcome, Body: map[string]any{"ok": true}}
		if outcome == domain.DispatchAccepted && r.Event.Kind == domain.SlackEventSlashCommand {
			ack.Body = map[string]any{
				"response_type": "in_channel",
				"text":          SearchingText(r.Event.Text),
			}
		}
		return ack, nil
	}

	return nil, fmt.Errorf("unhandled slack request %T", parsed)
}

// Process answers one dispatched event. The returned error, if any, is the
// query failure that was reported to the channel as a generic notice.
func (s *SlackService) Process(ctx context.Context, event *domain.SlackEvent) (domain.PostOutcome, error) {
	logger := s.logger.With("delivery_id", event.DeliveryID, "kind", event.Kind)
	s.dispatcher.Settle(ctx, event.DeliveryID, domain.DeliveryProcessing)

	target := event.ReplyTarget()
	question := strings.TrimSpace(event.Text)

	if question == "" {
		outcome := s.poster.PostText(ctx, target, HelpText)
		s.settle(ctx, event.DeliveryID, outcome, nil)
		return outcome, nil
	}

	if event.Kind == domain.SlackEventAppMention {
		s.poster.Notify(ctx, target, SearchingText(question))
	}

	result, err := s.query.Query(ctx, domain.QueryRequest{Question: question})
	if err != nil {
		logger.Error("failed to answer slack question", "error", err)
	}

	outcome := s.poster.Post(ctx, target, result, err)
	s.settle(ctx, event.DeliveryID, outcome, err)
	logger.Info("slack question processed", "outcome", outcome)
	return outcome, err
}

func (s *SlackService) settle(ctx context.Context, id string, outcome domain.PostOutcome, cause error) {
	state := domain.DeliveryAnswered
	if cause != nil || outcome != domain.PostPosted {
		state = domain.DeliveryFailed
	}
	s.dispatcher.Settle(ctx, id, state)
}
