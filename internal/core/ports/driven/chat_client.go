package driven

import (
	"context"

	"github.com/custodia-labs/nexus/internal/core/domain"
)

// ChatClient posts messages back to the chat platform.
type ChatClient interface {
	// PostMessage delivers msg to msg.Target. A response_url target takes
	// precedence over channel posting.
	PostMessage(ctx context.Context, msg domain.ChatMessage) error
}
