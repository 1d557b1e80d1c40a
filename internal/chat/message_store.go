package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hallway/pkg/models"
)

// DefaultPageSize caps a single reconciliation fetch.
const DefaultPageSize = 50

// MessageStore handles database operations for messages. The log is
// append-mostly: rows are immutable except for sender edits and deletion.
type MessageStore struct {
	db       *sql.DB
	pageSize int
}

// NewMessageStore creates a new message store with the default page size.
func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db, pageSize: DefaultPageSize}
}

// Insert persists a new message and its attachments in one transaction: a
// message must never become fetchable without the attachments it was sent
// with. The database assigns created_at so concurrent sends get distinct,
// comparable timestamps from a single clock.
func (s *MessageStore) Insert(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	for i := range msg.Attachments {
		a := &msg.Attachments[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.MessageID = msg.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments (id, message_id, name, url, mime_type, size)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.MessageID, a.Name, a.URL, a.MimeType, a.Size)
		if err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Get returns a single message by id, including soft-deleted rows so the
// caller can reason about ownership before deleting.
func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, COALESCE(u.name, ''), m.content,
		       m.created_at, m.edited_at, m.deleted_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`, id).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName,
		&msg.Content, &msg.CreatedAt, &msg.EditedAt, &msg.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// ListAfter returns non-deleted messages in a conversation created strictly
// after the referenced message, ascending by created_at, capped at the page
// size. If the cursor id no longer resolves (deleted, or never existed), it
// falls back to the most recent page: the cursor's only purpose is a relative
// time boundary, so a dangling one must not fail the fetch.
func (s *MessageStore) ListAfter(ctx context.Context, conversationID, afterID string) ([]models.Message, error) {
	var after *time.Time
	if afterID != "" {
		var ts time.Time
		err := s.db.QueryRowContext(ctx, `
			SELECT created_at FROM messages
			WHERE id = $1 AND conversation_id = $2
		`, afterID, conversationID).Scan(&ts)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// dangling cursor, fall through to the latest page
		case err != nil:
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		default:
			after = &ts
		}
	}

	if after != nil {
		rows, err := s.db.QueryContext(ctx, `
			SELECT m.id, m.conversation_id, m.sender_id, COALESCE(u.name, ''), m.content,
			       m.created_at, m.edited_at
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = $1 AND m.deleted_at IS NULL AND m.created_at > $2
			ORDER BY m.created_at ASC, m.id ASC
			LIMIT $3
		`, conversationID, *after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		return s.scanMessages(ctx, rows)
	}

	// Latest page, still returned ascending.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, content, created_at, edited_at
		FROM (
			SELECT m.id, m.conversation_id, m.sender_id, COALESCE(u.name, '') AS sender_name,
			       m.content, m.created_at, m.edited_at
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = $1 AND m.deleted_at IS NULL
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $2
		) latest
		ORDER BY created_at ASC, id ASC
	`, conversationID, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return s.scanMessages(ctx, rows)
}

func (s *MessageStore) scanMessages(ctx context.Context, rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID,
			&msg.SenderName, &msg.Content, &msg.CreatedAt, &msg.EditedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	if err := s.loadAttachments(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *MessageStore) loadAttachments(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	byID := make(map[string]*models.Message, len(msgs))
	ids := make([]string, 0, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
		ids = append(ids, msgs[i].ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, name, url, mime_type, size
		FROM attachments
		WHERE message_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Name, &a.URL, &a.MimeType, &a.Size); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if msg, ok := byID[a.MessageID]; ok {
			msg.Attachments = append(msg.Attachments, a)
		}
	}
	return rows.Err()
}

// Edit replaces a message's content and stamps edited_at. Ownership is
// checked by the caller.
func (s *MessageStore) Edit(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = $2, edited_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, content)
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete hides a channel message from reads but retains the row.
func (s *MessageStore) SoftDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes a direct-thread message outright. Attachments go with
// it via ON DELETE CASCADE.
func (s *MessageStore) HardDelete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnread counts messages another user must still read: created after
// the watermark, not sent by them, not deleted.
func (s *MessageStore) CountUnread(ctx context.Context, conversationID, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2
		  AND created_at > $3 AND deleted_at IS NULL
	`, conversationID, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}
