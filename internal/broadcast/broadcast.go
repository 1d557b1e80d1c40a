// Package broadcast is the best-effort fan-out used for low-latency push.
// It makes no delivery, ordering, or durability promises: a subscriber that
// is offline when an event is published never sees it. Callers must treat it
// purely as a latency optimization and rely on the pull path for
// correctness.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hallway/pkg/models"
)

// Topic naming: one topic per conversation for messages, one per user for
// "your unread state changed, recheck" nudges.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

func UserTopic(userID string) string {
	return "user:" + userID
}

// Event kinds carried on the wire.
const (
	EventNewMessage    = "new-message"
	EventSidebarUpdate = "sidebar-update"
)

// Event is a single published payload.
type Event struct {
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription is a live feed for one topic. Close must be idempotent and
// must release the underlying resources; leaking subscriptions is a bug.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broadcaster is the external pub/sub capability boundary. Implementations
// are interchangeable; absence of configuration degrades to NopBroadcaster
// and the system runs polling-only.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// NewMessageEvent builds the push event for a freshly persisted message.
func NewMessageEvent(msg *models.Message) Event {
	payload, _ := json.Marshal(msg)
	return Event{
		Topic:   ConversationTopic(msg.ConversationID),
		Kind:    EventNewMessage,
		Payload: payload,
	}
}

// SidebarUpdateEvent builds the nudge telling a user's sessions to recompute
// unread counts.
func SidebarUpdateEvent(userID string) Event {
	return Event{
		Topic: UserTopic(userID),
		Kind:  EventSidebarUpdate,
	}
}

// DefaultPublishTimeout bounds a single publish so a slow transport can
// never hold up the send pipeline's response.
const DefaultPublishTimeout = 2 * time.Second

// NopBroadcaster drops everything. Used when no transport is configured.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(ctx context.Context, ev Event) error { return nil }

func (NopBroadcaster) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	return nopSubscription{ch: make(chan Event)}, nil
}

func (NopBroadcaster) Close() error { return nil }

type nopSubscription struct{ ch chan Event }

func (s nopSubscription) Events() <-chan Event { return s.ch }
func (s nopSubscription) Close() error         { return nil }
