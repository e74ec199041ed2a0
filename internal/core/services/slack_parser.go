package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// DefaultSlashCommand is the command name accepted when none is configured.
const DefaultSlashCommand = "/nexus"

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

// SlackParser turns a verified request body into one SlackRequest variant.
type SlackParser struct {
	command string
	now     func() time.Time
}

// NewSlackParser creates a parser accepting the given slash command.
func NewSlackParser(command string, now func() time.Time) *SlackParser {
	if command == "" {
		command = DefaultSlashCommand
	}
	if !strings.HasPrefix(command, "/") {
		command = "/" + command
	}
	if now == nil {
		now = time.Now
	}
	return &SlackParser{command: command, now: now}
}

// UsageText is the reply to a slash command with no question.
func (p *SlackParser) UsageText() string {
	return fmt.Sprintf("Please provide a question. Usage: `%s What is the data retention policy?`", p.command)
}

// Parse decodes body. JSON bodies are Events API callbacks; anything else is
// treated as a form-encoded slash command.
func (p *SlackParser) Parse(body []byte, contentType string, signature, timestamp string) (domain.SlackRequest, error) {
	trimmed := bytes.TrimSpace(body)
	if strings.Contains(contentType, "application/json") || bytes.HasPrefix(trimmed, []byte("{")) {
		return p.parseEvent(trimmed, body, signature, timestamp)
	}
	return p.parseSlashCommand(body, signature, timestamp)
}

func (p *SlackParser) parseSlashCommand(body []byte, signature, timestamp string) (domain.SlackRequest, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: form body: %v", domain.ErrInvalidInput, err)
	}

	command := strings.TrimSpace(form.Get("command"))
	if command == "" {
		return nil, fmt.Errorf("%w: missing command", domain.ErrInvalidInput)
	}
	if command != p.command {
		return domain.ImmediateReply{Text: "Unknown command: " + command, ResponseType: "ephemeral"}, nil
	}

	text := strings.TrimSpace(form.Get("text"))
	if text == "" {
		return domain.ImmediateReply{Text: p.UsageText(), ResponseType: "ephemeral"}, nil
	}

	deliveryID := form.Get("trigger_id")
	if deliveryID == "" {
		deliveryID = bodyDigest(body)
	}

	return domain.DispatchRequest{Event: &domain.SlackEvent{
		DeliveryID:  deliveryID,
		Kind:        domain.SlackEventSlashCommand,
		TeamID:      form.Get("team_id"),
		ChannelID:   form.Get("channel_id"),
		UserID:      form.Get("user_id"),
		Text:        text,
		ResponseURL: form.Get("response_url"),
		Signature:   signature,
		Timestamp:   timestamp,
		RawBody:     body,
		ReceivedAt:  p.now(),
	}}, nil
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		User     string `json:"user"`
		BotID    string `json:"bot_id"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

func (p *SlackParser) parseEvent(trimmed, body []byte, signature, timestamp string) (domain.SlackRequest, error) {
	var env eventEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: event body: %v", domain.ErrInvalidInput, err)
	}

	switch env.Type {
	case "url_verification":
		return domain.URLVerification{Challenge: env.Challenge}, nil
	case "event_callback":
	default:
		return domain.IgnoredRequest{Reason: "unsupported request type " + env.Type}, nil
	}

	ev := env.Event
	if ev.BotID != "" || ev.Subtype == "bot_message" {
		return domain.IgnoredRequest{Reason: "bot message"}, nil
	}
	if ev.Type != "app_mention" {
		return domain.IgnoredRequest{Reason: "unsupported event " + ev.Type}, nil
	}

	threadTS := ev.ThreadTS
	if threadTS == "" {
		threadTS = ev.TS
	}
	deliveryID := env.EventID
	if deliveryID == "" {
		deliveryID = bodyDigest(body)
	}

	return domain.DispatchRequest{Event: &domain.SlackEvent{
		DeliveryID: deliveryID,
		Kind:       domain.SlackEventAppMention,
		TeamID:     env.TeamID,
		ChannelID:  ev.Channel,
		UserID:     ev.User,
		Text:       StripMentions(ev.Text),
		ThreadTS:   threadTS,
		Signature:  signature,
		Timestamp:  timestamp,
		RawBody:    body,
		ReceivedAt: p.now(),
	}}, nil
}

// StripMentions removes user mention markup and collapses whitespace.
func StripMentions(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " ")
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return "body-" + hex.EncodeToString(sum[:16])
}
