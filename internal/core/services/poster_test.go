package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven/mocks"
)

func newTestPoster(client *mocks.MockChatClient) *Poster {
	return NewPoster(PosterConfig{Client: client, RetryDelay: time.Millisecond, Logger: discardLogger()})
}

func sampleResult() *domain.QueryResult {
	return &domain.QueryResult{
		Question: "How long are <board> minutes kept?",
		Answer:   "Ten years.",
		Citations: []domain.Citation{
			{DocumentID: "retention", Title: "Records Retention Policy", Page: 4, URL: "https://docs.example.com/retention#page=4"},
			{DocumentID: "retention", Title: "Records Retention Policy", Page: 3, URL: "https://docs.example.com/retention#page=3"},
			{DocumentID: "governance", Title: "Governance Charter", Page: 2},
		},
	}
}

func TestFormatAnswer(t *testing.T) {
	text := FormatAnswer(sampleResult())

	for _, want := range []string{
		"*❓ Question*\nHow long are &lt;board&gt; minutes kept?",
		"*💡 Answer*\nTen years.",
		"*📚 Sources*\n",
		"• <https://docs.example.com/retention#page=4|Records Retention Policy (Pages 3, 4)>",
		"• Governance Charter (Page 2)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
}

func TestFormatAnswer_NoCitations(t *testing.T) {
	text := FormatAnswer(&domain.QueryResult{Question: "q", Answer: FallbackAnswer, Citations: []domain.Citation{}})
	if strings.Contains(text, "Sources") {
		t.Errorf("expected no sources section, got:\n%s", text)
	}
}

func TestFormatSources_EscapesLinkURL(t *testing.T) {
	got := formatSources([]domain.Citation{{DocumentID: "d", Title: "T", Page: 1, URL: "https://x.test/a|b<c>"}})
	want := "• <https://x.test/a%7Cb%3Cc%3E|T (Page 1)>"
	if got != want {
		t.Errorf("formatSources() = %q, want %q", got, want)
	}
}

func TestFormatAnswer_EscapesAnswer(t *testing.T) {
	text := FormatAnswer(&domain.QueryResult{Question: "q", Answer: "Ask <!channel> & <@U123>"})
	if !strings.Contains(text, "Ask &lt;!channel&gt; &amp; &lt;@U123&gt;") {
		t.Errorf("expected escaped answer in:\n%s", text)
	}
	if strings.Contains(text, "<!channel>") {
		t.Errorf("answer must not carry a channel mention:\n%s", text)
	}
}

func TestSearchingText(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"retention", "🔍 Searching Nexus: \"retention\""},
		{"<!channel> retention?", "🔍 Searching Nexus: \"&lt;!channel&gt; retention?\""},
		{"R&D budget", "🔍 Searching Nexus: \"R&amp;D budget\""},
	}
	for _, tt := range tests {
		if got := SearchingText(tt.question); got != tt.want {
			t.Errorf("SearchingText(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestPoster_PostsAnswer(t *testing.T) {
	client := mocks.NewMockChatClient()
	p := newTestPoster(client)
	target := domain.ReplyTarget{ChannelID: "C1", ResponseURL: "https://hooks.slack.com/x"}

	if outcome := p.Post(context.Background(), target, sampleResult(), nil); outcome != domain.PostPosted {
		t.Fatalf("expected posted, got %s", outcome)
	}
	msgs := client.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !msgs[0].ReplaceOriginal || msgs[0].ResponseType != "in_channel" {
		t.Errorf("expected in-channel replacement via response url, got %+v", msgs[0])
	}
}

func TestPoster_RetriesOnce(t *testing.T) {
	client := mocks.NewMockChatClient()
	failures := 1
	client.PostFn = func(msg domain.ChatMessage) error {
		if failures > 0 {
			failures--
			return errors.New("503")
		}
		return nil
	}
	p := newTestPoster(client)

	outcome := p.Post(context.Background(), domain.ReplyTarget{ChannelID: "C1", ThreadTS: "1.0"}, sampleResult(), nil)
	if outcome != domain.PostPosted {
		t.Errorf("expected posted after retry, got %s", outcome)
	}
	if client.Attempts() != 2 {
		t.Errorf("expected 2 attempts, got %d", client.Attempts())
	}
	if msgs := client.Messages(); len(msgs) != 1 || msgs[0].ReplaceOriginal {
		t.Errorf("expected one threaded message, got %+v", msgs)
	}
}

func TestPoster_FallsBackToErrorNotice(t *testing.T) {
	client := mocks.NewMockChatClient()
	client.PostFn = func(msg domain.ChatMessage) error {
		if msg.Text != ErrorNoticeText {
			return errors.New("message too long")
		}
		return nil
	}
	p := newTestPoster(client)

	outcome := p.Post(context.Background(), domain.ReplyTarget{ChannelID: "C1"}, sampleResult(), nil)
	if outcome != domain.PostFailed {
		t.Errorf("expected post_failed, got %s", outcome)
	}
	if client.Attempts() != 3 {
		t.Errorf("expected 2 answer attempts and 1 notice, got %d", client.Attempts())
	}
	msgs := client.Messages()
	if len(msgs) != 1 || msgs[0].Text != ErrorNoticeText {
		t.Errorf("expected only the error notice posted, got %+v", msgs)
	}
}

func TestPoster_QueryFailurePostsNoticeWithoutDetail(t *testing.T) {
	client := mocks.NewMockChatClient()
	p := newTestPoster(client)

	cause := &domain.GenerationError{Attempts: 3, Err: errors.New("api key sk-secret rejected")}
	outcome := p.Post(context.Background(), domain.ReplyTarget{ChannelID: "C1"}, nil, cause)
	if outcome != domain.PostPosted {
		t.Errorf("expected notice posted, got %s", outcome)
	}
	msgs := client.Messages()
	if len(msgs) != 1 || msgs[0].Text != ErrorNoticeText {
		t.Fatalf("expected generic notice, got %+v", msgs)
	}
	if strings.Contains(msgs[0].Text, "sk-secret") {
		t.Error("internal error detail leaked to channel")
	}
}

func TestPoster_CancelledContextStopsRetry(t *testing.T) {
	client := mocks.NewMockChatClient()
	client.PostFn = func(msg domain.ChatMessage) error { return errors.New("down") }
	p := NewPoster(PosterConfig{Client: client, RetryDelay: time.Hour, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if outcome := p.PostText(ctx, domain.ReplyTarget{ChannelID: "C1"}, HelpText); outcome != domain.PostFailed {
		t.Errorf("expected post_failed, got %s", outcome)
	}
	if client.Attempts() != 1 {
		t.Errorf("expected no retry after cancellation, got %d attempts", client.Attempts())
	}
}
