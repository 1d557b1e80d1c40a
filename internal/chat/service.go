package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hallway/internal/broadcast"
	"github.com/hallway/pkg/models"
)

// MaxContentLength bounds a message body, matching the client-side limit.
const MaxContentLength = 2000

// Store interfaces the service depends on. The concrete postgres stores in
// this package satisfy them; tests substitute fakes.

type MessageRepository interface {
	Insert(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	ListAfter(ctx context.Context, conversationID, afterID string) ([]models.Message, error)
	Edit(ctx context.Context, id, content string) error
	SoftDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
	CountUnread(ctx context.Context, conversationID, userID string, since time.Time) (int, error)
}

type ConversationRepository interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
	MemberIDs(ctx context.Context, conversationID string) ([]string, error)
	ConversationIDs(ctx context.Context, userID string) ([]string, error)
	CreateOrGetThread(ctx context.Context, userA, userB string) (string, error)
}

type ReceiptRepository interface {
	MarkRead(ctx context.Context, userID, conversationID string, now time.Time) error
	LastReadAt(ctx context.Context, userID, conversationID string) (time.Time, error)
}

// Limiter is the admission-control seam.
type Limiter interface {
	Allow(senderID string) bool
}

// NudgeEnqueuer schedules the background fan-out of sidebar nudges to a
// conversation's members after a send.
type NudgeEnqueuer interface {
	EnqueueSidebarNudge(ctx context.Context, conversationID, senderID string) error
}

// Service is the delivery core: validates and persists sends, answers
// reconciliation fetches, advances read watermarks, and derives unread
// counts. Persistence failures surface to the caller; broadcast failures
// are logged and swallowed.
type Service struct {
	messages       MessageRepository
	conversations  ConversationRepository
	receipts       ReceiptRepository
	limiter        Limiter
	broadcaster    broadcast.Broadcaster
	nudges         NudgeEnqueuer
	publishTimeout time.Duration
}

// NewService wires the delivery core. broadcaster may be a NopBroadcaster
// (polling-only mode); nudges may be nil when no job queue is configured.
func NewService(
	messages MessageRepository,
	conversations ConversationRepository,
	receipts ReceiptRepository,
	limiter Limiter,
	broadcaster broadcast.Broadcaster,
	nudges NudgeEnqueuer,
) *Service {
	return &Service{
		messages:       messages,
		conversations:  conversations,
		receipts:       receipts,
		limiter:        limiter,
		broadcaster:    broadcaster,
		nudges:         nudges,
		publishTimeout: broadcast.DefaultPublishTimeout,
	}
}

// SetPublishTimeout overrides the default broadcast publish deadline.
// Non-positive values are ignored.
func (s *Service) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// SendInput carries everything the send pipeline needs.
type SendInput struct {
	ConversationID string
	SenderID       string
	SenderRole     string
	Content        string
	Attachments    []models.Attachment
}

// SendMessage validates, rate-limits, persists, then broadcasts best-effort.
// The returned message carries the store-assigned id and timestamp so the
// caller can render its own message without waiting for the broadcast echo.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*models.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, fmt.Errorf("%w: conversation and sender are required", ErrInvalidInput)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, ErrEmptyContent
	}
	// Characters, not bytes: multibyte content gets the same budget.
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	if err := s.requireMember(ctx, in.ConversationID, in.SenderID, in.SenderRole); err != nil {
		return nil, err
	}

	if !s.limiter.Allow(in.SenderID) {
		return nil, ErrRateLimited
	}

	msg := &models.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        content,
		Attachments:    in.Attachments,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}

	// Everything past this point is best-effort: the message is durable and
	// the reconciliation fetch is the recovery path.
	s.publish(broadcast.NewMessageEvent(msg))

	if s.nudges != nil {
		if err := s.nudges.EnqueueSidebarNudge(ctx, in.ConversationID, in.SenderID); err != nil {
			log.Warn().Err(err).
				Str("conversation_id", in.ConversationID).
				Msg("Failed to enqueue sidebar nudge")
		}
	}

	return msg, nil
}

// FetchAfter is the authoritative pull path: correct even if no broadcast
// ever fired.
func (s *Service) FetchAfter(ctx context.Context, userID, role, conversationID, afterID string) ([]models.Message, error) {
	if err := s.requireMember(ctx, conversationID, userID, role); err != nil {
		return nil, err
	}
	return s.messages.ListAfter(ctx, conversationID, afterID)
}

// MarkRead advances the caller's watermark and nudges their other sessions.
// Idempotent: calling on every render pass is wasteful but harmless because
// the store update is monotonic.
func (s *Service) MarkRead(ctx context.Context, userID, role, conversationID string) error {
	if err := s.requireMember(ctx, conversationID, userID, role); err != nil {
		return err
	}
	if err := s.receipts.MarkRead(ctx, userID, conversationID, time.Now()); err != nil {
		return err
	}
	s.publish(broadcast.SidebarUpdateEvent(userID))
	return nil
}

// UnreadCounts derives per-conversation unread counts for the user: messages
// newer than the watermark, from other senders. Derived, never stored, so
// there is no counter to drift.
func (s *Service) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	ids, err := s.conversations.ConversationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		since, err := s.receipts.LastReadAt(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		n, err := s.messages.CountUnread(ctx, id, userID, since)
		if err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, nil
}

// CreateOrGetThread opens (or finds) the direct thread between the caller
// and target. Idempotent under concurrent initiation by either party.
func (s *Service) CreateOrGetThread(ctx context.Context, userID, targetUserID string) (string, error) {
	if targetUserID == "" {
		return "", fmt.Errorf("%w: target user required", ErrInvalidInput)
	}
	return s.conversations.CreateOrGetThread(ctx, userID, targetUserID)
}

// EditMessage replaces a message's content. Sender-only.
func (s *Service) EditMessage(ctx context.Context, userID, messageID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}

	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}
	return s.messages.Edit(ctx, messageID, content)
}

// DeleteMessage removes a message. Channel messages are soft-deleted
// (hidden, retained); direct-thread messages are hard-deleted. The
// asymmetry is deliberate and mirrors the product's observed behavior; do
// not unify without product sign-off.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}

	conv, err := s.conversations.Get(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if conv.Kind == models.KindDirect {
		return s.messages.HardDelete(ctx, messageID)
	}
	return s.messages.SoftDelete(ctx, messageID)
}

// CanAccess reports whether the user may read the conversation. Used by the
// websocket gateway to gate topic subscriptions.
func (s *Service) CanAccess(ctx context.Context, userID, role, conversationID string) bool {
	return s.requireMember(ctx, conversationID, userID, role) == nil
}

// requireMember enforces the membership precondition. Admin role implies
// membership everywhere.
func (s *Service) requireMember(ctx context.Context, conversationID, userID, role string) error {
	if role == models.RoleAdmin {
		if _, err := s.conversations.Get(ctx, conversationID); err != nil {
			return err
		}
		return nil
	}
	ok, err := s.conversations.IsMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

// publish fires a broadcast under the pipeline's timeout. Failures are
// logged and swallowed: the push path is a latency optimization only.
func (s *Service) publish(ev broadcast.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()
	if err := s.broadcaster.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("topic", ev.Topic).Msg("Broadcast publish failed, poll path will recover")
	}
}
