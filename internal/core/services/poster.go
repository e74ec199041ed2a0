package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Poster delivers answers to Slack. A failed post is retried once; if that
// fails too, a generic error notice is attempted and the cause is logged.
type Poster struct {
	client     driven.ChatClient
	retryDelay time.Duration
	logger     *slog.Logger
}

// PosterConfig holds dependencies for Poster.
type PosterConfig struct {
	Client     driven.ChatClient
	RetryDelay time.Duration // Pause before the single retry (default: 1s)
	Logger     *slog.Logger
}

// NewPoster creates a new response poster.
func NewPoster(cfg PosterConfig) *Poster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Poster{client: cfg.Client, retryDelay: delay, logger: logger}
}

// Post delivers result to target. When cause is non-nil the answer could
// not be produced and the generic error notice is posted instead; the
// cause itself never reaches the channel.
func (p *Poster) Post(ctx context.Context, target domain.ReplyTarget, result *domain.QueryResult, cause error) domain.PostOutcome {
	var msg domain.ChatMessage
	if cause != nil || result == nil {
		p.logger.Error("answer unavailable, posting error notice", "channel", target.ChannelID, "error", cause)
		msg = answerMessage(target, ErrorNoticeText)
	} else {
		msg = answerMessage(target, FormatAnswer(result))
	}

	outcome := p.deliver(ctx, msg)
	if outcome == domain.PostFailed && cause == nil {
		if err := p.client.PostMessage(ctx, answerMessage(target, ErrorNoticeText)); err != nil {
			p.logger.Error("failed to post error notice", "channel", target.ChannelID, "error", err)
		}
	}
	metrics.SlackPosts.WithLabelValues(string(outcome)).Inc()
	return outcome
}

// PostText delivers a plain message with the same single retry.
func (p *Poster) PostText(ctx context.Context, target domain.ReplyTarget, text string) domain.PostOutcome {
	outcome := p.deliver(ctx, answerMessage(target, text))
	metrics.SlackPosts.WithLabelValues(string(outcome)).Inc()
	return outcome
}

// Notify makes one best-effort post, used for progress acknowledgments.
func (p *Poster) Notify(ctx context.Context, target domain.ReplyTarget, text string) {
	msg := domain.ChatMessage{Target: target, Text: text}
	if err := p.client.PostMessage(ctx, msg); err != nil {
		p.logger.Warn("failed to post acknowledgment", "channel", target.ChannelID, "error", err)
	}
}

func (p *Poster) deliver(ctx context.Context, msg domain.ChatMessage) domain.PostOutcome {
	err := p.client.PostMessage(ctx, msg)
	if err == nil {
		return domain.PostPosted
	}
	p.logger.Warn("post failed, retrying once", "channel", msg.Target.ChannelID, "error", err)

	select {
	case <-ctx.Done():
		p.logger.Error("post abandoned", "channel", msg.Target.ChannelID, "error", ctx.Err())
		return domain.PostFailed
	case <-time.After(p.retryDelay):
	}

	if err := p.client.PostMessage(ctx, msg); err != nil {
		p.logger.Error("post failed after retry", "channel", msg.Target.ChannelID, "error", err)
		return domain.PostFailed
	}
	return domain.PostPosted
}
