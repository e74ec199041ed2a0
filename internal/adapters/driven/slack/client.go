// Package slack posts answers back to Slack, through a slash command's
// response_url or the chat.postMessage Web API.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
)

var _ driven.ChatClient = (*Client)(nil)

// DefaultAPIBaseURL is the Slack Web API root
const DefaultAPIBaseURL = "https://slack.com/api"

// Config holds the Slack client settings.
type Config struct {
	BotToken   string
	APIBaseURL string

	// ResponseURLHosts restricts response_url targets; empty allows any host
	ResponseURLHosts []string

	// RequestsPerSecond caps outbound posts; Slack allows about one per second per channel
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client implements ChatClient over Slack's HTTP APIs.
type Client struct {
	botToken   string
	apiBaseURL string
	hosts      []string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Slack client.
func NewClient(cfg Config) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		botToken:   cfg.BotToken,
		apiBaseURL: cfg.APIBaseURL,
		hosts:      cfg.ResponseURLHosts,
		limiter:    limiter,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

type responseURLMessage struct {
	Text            string `json:"text"`
	ResponseType    string `json:"response_type,omitempty"`
	ReplaceOriginal bool   `json:"replace_original"`
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
	Mrkdwn   bool   `json:"mrkdwn"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// PostMessage delivers msg. A response_url target takes precedence over the channel.
func (c *Client) PostMessage(ctx context.Context, msg domain.ChatMessage) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if msg.Target.ResponseURL != "" {
		return c.postResponseURL(ctx, msg)
	}
	return c.postMessage(ctx, msg)
}

func (c *Client) postResponseURL(ctx context.Context, msg domain.ChatMessage) error {
	u, err := url.Parse(msg.Target.ResponseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: malformed response_url", domain.ErrInvalidInput)
	}
	if len(c.hosts) > 0 && !slices.Contains(c.hosts, u.Hostname()) {
		return fmt.Errorf("%w: response_url host %s not allowed", domain.ErrInvalidInput, u.Hostname())
	}

	body := responseURLMessage{
		Text:            msg.Text,
		ResponseType:    msg.ResponseType,
		ReplaceOriginal: msg.ReplaceOriginal,
	}
	resp, err := c.postJSON(ctx, u.String(), body, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return statusError("response_url", resp)
	}
	return nil
}

func (c *Client) postMessage(ctx context.Context, msg domain.ChatMessage) error {
	if msg.Target.ChannelID == "" {
		return fmt.Errorf("%w: reply target has no channel", domain.ErrInvalidInput)
	}
	if c.botToken == "" {
		return fmt.Errorf("%w: slack bot token not configured", domain.ErrInvalidInput)
	}

	body := postMessageRequest{
		Channel:  msg.Target.ChannelID,
		Text:     msg.Text,
		ThreadTS: msg.Target.ThreadTS,
		Mrkdwn:   true,
	}
	resp, err := c.postJSON(ctx, c.apiBaseURL+"/chat.postMessage", body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError("chat.postMessage", resp)
	}

	var out postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode chat.postMessage response: %w", err)
	}
	if !out.OK {
		if out.Error == "ratelimited" {
			return fmt.Errorf("%w: chat.postMessage rate limited", domain.ErrServiceUnavailable)
		}
		return fmt.Errorf("chat.postMessage failed: %s", out.Error)
	}

	c.logger.Debug("posted slack message", "channel", msg.Target.ChannelID, "ts", out.TS)
	return nil
}

func (c *Client) postJSON(ctx context.Context, target string, body any, auth bool) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.botToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: slack request failed: %v", domain.ErrServiceUnavailable, err)
	}
	return resp, nil
}

func statusError(endpoint string, resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %d (retry after %q)",
			domain.ErrServiceUnavailable, endpoint, resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	return fmt.Errorf("%s returned %d", endpoint, resp.StatusCode)
}
