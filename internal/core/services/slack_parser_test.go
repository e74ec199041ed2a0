package services

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

func slashBody(values map[string]string) []byte {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}
	return []byte(form.Encode())
}

func TestSlackParser_SlashCommand(t *testing.T) {
	received := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	p := NewSlackParser("", fixedClock(received))
	body := slashBody(map[string]string{
		"command":      "/nexus",
		"text":         "  What is the data retention policy?  ",
		"team_id":      "T1",
		"channel_id":   "C1",
		"user_id":      "U1",
		"response_url": "https://hooks.slack.com/commands/T1/1/abc",
		"trigger_id":   "trig-1",
	})

	parsed, err := p.Parse(body, "application/x-www-form-urlencoded", "v0=sig", "123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req, ok := parsed.(domain.DispatchRequest)
	if !ok {
		t.Fatalf("expected DispatchRequest, got %T", parsed)
	}
	ev := req.Event
	if ev.Kind != domain.SlackEventSlashCommand || ev.DeliveryID != "trig-1" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Text != "What is the data retention policy?" {
		t.Errorf("expected trimmed text, got %q", ev.Text)
	}
	if ev.ResponseURL == "" || ev.ChannelID != "C1" || ev.UserID != "U1" || ev.TeamID != "T1" {
		t.Errorf("routing fields not populated: %+v", ev)
	}
	if ev.Signature != "v0=sig" || ev.Timestamp != "123" || !ev.ReceivedAt.Equal(received) {
		t.Errorf("request metadata not recorded: %+v", ev)
	}
}

func TestSlackParser_SlashCommandWithoutTriggerUsesDigest(t *testing.T) {
	p := NewSlackParser("/nexus", nil)
	body := slashBody(map[string]string{"command": "/nexus", "text": "retention"})

	first, _ := p.Parse(body, "", "", "")
	second, _ := p.Parse(body, "", "", "")
	a := first.(domain.DispatchRequest).Event.DeliveryID
	b := second.(domain.DispatchRequest).Event.DeliveryID
	if a == "" || a != b {
		t.Errorf("expected stable digest delivery id, got %q and %q", a, b)
	}
}

func TestSlackParser_EmptySlashCommandGivesUsage(t *testing.T) {
	p := NewSlackParser("nexus", nil)
	parsed, err := p.Parse(slashBody(map[string]string{"command": "/nexus", "text": "   "}), "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, ok := parsed.(domain.ImmediateReply)
	if !ok {
		t.Fatalf("expected ImmediateReply, got %T", parsed)
	}
	if reply.Text != "Please provide a question. Usage: `/nexus What is the data retention policy?`" {
		t.Errorf("unexpected usage text %q", reply.Text)
	}
	if reply.ResponseType != "ephemeral" {
		t.Errorf("expected ephemeral reply, got %s", reply.ResponseType)
	}
}

func TestSlackParser_UnknownCommand(t *testing.T) {
	p := NewSlackParser("/nexus", nil)
	parsed, err := p.Parse(slashBody(map[string]string{"command": "/weather", "text": "today"}), "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reply, ok := parsed.(domain.ImmediateReply)
	if !ok || reply.Text != "Unknown command: /weather" {
		t.Errorf("expected unknown command reply, got %#v", parsed)
	}
}

func TestSlackParser_MissingCommand(t *testing.T) {
	p := NewSlackParser("/nexus", nil)
	if _, err := p.Parse([]byte("text=hello"), "", "", ""); err == nil {
		t.Error("expected error for body without command")
	}
}

func TestSlackParser_URLVerification(t *testing.T) {
	p := NewSlackParser("", nil)
	body := []byte(`{"token":"x","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","type":"url_verification"}`)

	parsed, err := p.Parse(body, "application/json", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := parsed.(domain.URLVerification)
	if !ok || v.Challenge != "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P" {
		t.Errorf("expected challenge, got %#v", parsed)
	}
}

func TestSlackParser_AppMention(t *testing.T) {
	p := NewSlackParser("", nil)
	body := []byte(`{
		"type": "event_callback",
		"team_id": "T1",
		"event_id": "Ev123",
		"event": {
			"type": "app_mention",
			"user": "U1",
			"text": "<@U0NEXUS> how long do we keep   board minutes?",
			"channel": "C1",
			"ts": "1700000000.000100"
		}
	}`)

	parsed, err := p.Parse(body, "application/json", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := parsed.(domain.DispatchRequest).Event
	if ev.Kind != domain.SlackEventAppMention || ev.DeliveryID != "Ev123" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Text != "how long do we keep board minutes?" {
		t.Errorf("expected mention stripped, got %q", ev.Text)
	}
	if ev.ThreadTS != "1700000000.000100" {
		t.Errorf("expected reply in thread of the mention, got %q", ev.ThreadTS)
	}
}

func TestSlackParser_AppMentionInThread(t *testing.T) {
	p := NewSlackParser("", nil)
	body := []byte(`{"type":"event_callback","event_id":"Ev2","event":{"type":"app_mention","text":"<@U0NEXUS> hi","channel":"C1","ts":"2.0","thread_ts":"1.0"}}`)

	parsed, _ := p.Parse(body, "application/json", "", "")
	if ts := parsed.(domain.DispatchRequest).Event.ThreadTS; ts != "1.0" {
		t.Errorf("expected existing thread 1.0, got %q", ts)
	}
}

func TestSlackParser_IgnoredEvents(t *testing.T) {
	p := NewSlackParser("", nil)
	tests := []struct {
		name string
		body string
	}{
		{"bot id", `{"type":"event_callback","event":{"type":"app_mention","bot_id":"B1","text":"echo"}}`},
		{"bot subtype", `{"type":"event_callback","event":{"type":"message","subtype":"bot_message","text":"echo"}}`},
		{"other event", `{"type":"event_callback","event":{"type":"reaction_added"}}`},
		{"other envelope", `{"type":"app_rate_limited"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := p.Parse([]byte(tt.body), "application/json", "", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := parsed.(domain.IgnoredRequest); !ok {
				t.Errorf("expected IgnoredRequest, got %T", parsed)
			}
		})
	}
}

func TestSlackParser_MalformedJSON(t *testing.T) {
	p := NewSlackParser("", nil)
	if _, err := p.Parse([]byte(`{"type":`), "application/json", "", ""); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestStripMentions(t *testing.T) {
	tests := map[string]string{
		"<@U123> hello":                  "hello",
		"<@U123|nexus>   what   is   x?": "what is x?",
		"ask <@U1> and <@U2> about it":   "ask and about it",
		"no mentions":                    "no mentions",
		"<@U123>":                        "",
	}
	for in, want := range tests {
		if got := StripMentions(in); got != want {
			t.Errorf("StripMentions(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(StripMentions("<@W1X2> hi"), "<@") {
		t.Error("expected enterprise user ids stripped")
	}
}
