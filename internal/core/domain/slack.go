package domain

import "time"

// SlackEventKind identifies how a dispatchable event arrived
type SlackEventKind string

const (
	SlackEventSlashCommand SlackEventKind = "slash_command"
	SlackEventAppMention   SlackEventKind = "app_mention"
)

// SlackEvent is a verified, dispatchable question from Slack.
// It is consumed exactly once by the processor.
type SlackEvent struct {
	DeliveryID string         `json:"delivery_id"`
	Kind       SlackEventKind `json:"kind"`
	TeamID     string         `json:"team_id"`
	ChannelID  string         `json:"channel_id"`
	UserID     string         `json:"user_id"`
	Text       string         `json:"text"` // Parsed question, mention markup removed

	// Reply routing. Slash commands answer through ResponseURL,
	// mentions answer in the thread identified by ThreadTS.
	ResponseURL string `json:"response_url,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`

	Signature  string    `json:"signature"`
	Timestamp  string    `json:"timestamp"`
	RawBody    []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// ReplyTarget returns where answers to this event should be posted.
func (e *SlackEvent) ReplyTarget() ReplyTarget {
	return ReplyTarget{
		ChannelID:   e.ChannelID,
		ThreadTS:    e.ThreadTS,
		ResponseURL: e.ResponseURL,
	}
}

// ReplyTarget addresses an outbound chat message
type ReplyTarget struct {
	ChannelID   string `json:"channel_id"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
}

// SlackRequest is one of the inbound request variants below.
// Parsing at the boundary produces exactly one of them.
type SlackRequest interface {
	slackRequest()
}

// URLVerification is the Events API endpoint handshake.
type URLVerification struct {
	Challenge string
}

// ImmediateReply is answered synchronously without dispatch,
// e.g. usage help for an empty slash command.
type ImmediateReply struct {
	Text         string
	ResponseType string // "ephemeral" or "in_channel"
}

// DispatchRequest carries an event that needs retrieval and generation.
type DispatchRequest struct {
	Event *SlackEvent
}

// IgnoredRequest is acknowledged and dropped (bot echoes, other event types).
type IgnoredRequest struct {
	Reason string
}

func (URLVerification) slackRequest() {}
func (ImmediateReply) slackRequest()  {}
func (DispatchRequest) slackRequest() {}
func (IgnoredRequest) slackRequest()  {}

// DispatchOutcome is the result of handing an event to the dispatcher
type DispatchOutcome string

const (
	DispatchAccepted  DispatchOutcome = "accepted"
	DispatchDuplicate DispatchOutcome = "duplicate"
	DispatchRejected  DispatchOutcome = "rejected"
)

// PostOutcome is the result of delivering an answer
type PostOutcome string

const (
	PostPosted PostOutcome = "posted"
	PostFailed PostOutcome = "post_failed"
)

// ChatMessage is a formatted outbound message
type ChatMessage struct {
	Target          ReplyTarget
	Text            string
	ResponseType    string // response_url only: "in_channel" or "ephemeral"
	ReplaceOriginal bool   // response_url only
}
