package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// Slack message texts
const (
	HelpText         = "Please ask me a question! For example: What is the data retention policy?"
	ErrorNoticeText  = "Sorry, I encountered an error while answering your question. Please try again later."
	searchingAckText = "🔍 Searching Nexus: \"%s\""
)

var (
	mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	linkEscaper   = strings.NewReplacer("|", "%7C", "<", "%3C", ">", "%3E")
)

// SearchingText is the acknowledgment shown while a question is answered.
func SearchingText(question string) string {
	return fmt.Sprintf(searchingAckText, mrkdwnEscaper.Replace(question))
}

// FormatAnswer renders a result as Slack mrkdwn with grouped sources.
func FormatAnswer(result *domain.QueryResult) string {
	var b strings.Builder
	b.WriteString("*❓ Question*\n")
	b.WriteString(mrkdwnEscaper.Replace(result.Question))
	b.WriteString("\n\n*💡 Answer*\n")
	b.WriteString(mrkdwnEscaper.Replace(result.Answer))

	if sources := formatSources(result.Citations); sources != "" {
		b.WriteString("\n\n*📚 Sources*\n")
		b.WriteString(sources)
	}
	return b.String()
}

// formatSources groups citations by document in first-cited order.
func formatSources(citations []domain.Citation) string {
	type group struct {
		title string
		url   string
		pages []int
	}
	var order []string
	groups := make(map[string]*group)
	for _, c := range citations {
		g, ok := groups[c.DocumentID]
		if !ok {
			g = &group{title: c.Title, url: c.URL}
			groups[c.DocumentID] = g
			order = append(order, c.DocumentID)
		}
		if g.url == "" {
			g.url = c.URL
		}
		if c.Page > 0 && !containsInt(g.pages, c.Page) {
			g.pages = append(g.pages, c.Page)
		}
	}

	lines := make([]string, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sort.Ints(g.pages)
		label := mrkdwnEscaper.Replace(g.title)
		if label == "" {
			label = id
		}
		switch len(g.pages) {
		case 0:
		case 1:
			label += fmt.Sprintf(" (Page %d)", g.pages[0])
		default:
			nums := make([]string, len(g.pages))
			for i, p := range g.pages {
				nums[i] = fmt.Sprint(p)
			}
			label += " (Pages " + strings.Join(nums, ", ") + ")"
		}
		if g.url != "" {
			lines = append(lines, fmt.Sprintf("• <%s|%s>", linkEscaper.Replace(g.url), label))
		} else {
			lines = append(lines, "• "+label)
		}
	}
	return strings.Join(lines, "\n")
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// answerMessage addresses text to target. Slash command replies replace the
// in-channel acknowledgment through the response URL.
func answerMessage(target domain.ReplyTarget, text string) domain.ChatMessage {
	msg := domain.ChatMessage{Target: target, Text: text}
	if target.ResponseURL != "" {
		msg.ResponseType = "in_channel"
		msg.ReplaceOriginal = true
	}
	return msg
}
