package api

import (
	"context"
	"strings"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/chat"
	"github.com/hallway/internal/ws"
)

// topicAuthorizer gates websocket topic subscriptions: a user may listen to
// their own nudge topic and to conversations they belong to, nothing else.
func topicAuthorizer(svc *chat.Service) ws.Authorize {
	return func(ctx context.Context, identity *auth.Identity, topic string) bool {
		if identity == nil {
			return false
		}
		switch {
		case strings.HasPrefix(topic, "user:"):
			return strings.TrimPrefix(topic, "user:") == identity.UserID
		case strings.HasPrefix(topic, "conversation:"):
			return svc.CanAccess(ctx, identity.UserID, identity.Role, strings.TrimPrefix(topic, "conversation:"))
		}
		return false
	}
}
