package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hallway/pkg/models"
)

// ConversationStore handles conversations (channels and direct threads) and
// channel memberships.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore creates a new conversation store.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, user1_id, user2_id, created_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(&conv.ID, &conv.Kind, &conv.Name, &conv.User1ID, &conv.User2ID, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// CreateChannel creates a new durable channel conversation.
func (s *ConversationStore) CreateChannel(ctx context.Context, name string) (*models.Conversation, error) {
	conv := models.Conversation{
		ID:   uuid.NewString(),
		Kind: models.KindChannel,
		Name: &name,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, kind, name)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, conv.ID, conv.Kind, name).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	return &conv, nil
}

// CreateOrGetThread returns the direct thread between two users, creating it
// on first contact. The pair is stored in lexicographic order so the unique
// index on (user1_id, user2_id) makes creation idempotent when both sides
// initiate at once; the no-op DO UPDATE lets the same statement RETURNING the
// existing row's id.
func (s *ConversationStore) CreateOrGetThread(ctx context.Context, userA, userB string) (string, error) {
	if userA == userB {
		return "", ErrSelfThread
	}
	u1, u2 := userA, userB
	if u2 < u1 {
		u1, u2 = u2, u1
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, kind, user1_id, user2_id)
		VALUES ($1, 'direct', $2, $3)
		ON CONFLICT (user1_id, user2_id) WHERE kind = 'direct'
		DO UPDATE SET user1_id = EXCLUDED.user1_id
		RETURNING id
	`, uuid.NewString(), u1, u2).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert thread: %w", err)
	}
	return id, nil
}

// AddMember adds a user to a channel. Adding twice is a no-op.
func (s *ConversationStore) AddMember(ctx context.Context, conversationID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, conversation_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, conversationID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// IsMember reports whether a user belongs to a conversation: a participant
// of a direct thread, or a membership row for a channel.
func (s *ConversationStore) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversations
			WHERE id = $1 AND kind = 'direct' AND (user1_id = $2 OR user2_id = $2)
			UNION ALL
			SELECT 1 FROM memberships
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// MemberIDs returns every participant of a conversation, used for
// sidebar-nudge fan-out after a send.
func (s *ConversationStore) MemberIDs(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if conv.Kind == models.KindDirect {
		ids := make([]string, 0, 2)
		if conv.User1ID != nil {
			ids = append(ids, *conv.User1ID)
		}
		if conv.User2ID != nil {
			ids = append(ids, *conv.User2ID)
		}
		return ids, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM memberships WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ConversationIDs returns every conversation the user can see: their channel
// memberships plus any direct thread they participate in.
func (s *ConversationStore) ConversationIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM memberships WHERE user_id = $1
		UNION
		SELECT id FROM conversations
		WHERE kind = 'direct' AND (user1_id = $1 OR user2_id = $1)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
