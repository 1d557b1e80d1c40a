package models

import (
	"time"
)

// Conversation kinds

// ConversationKind distinguishes durable channels from lazily created
// one-to-one threads.
type ConversationKind string

const (
	KindChannel ConversationKind = "channel"
	KindDirect  ConversationKind = "direct"
)

// User represents an authenticated identity. Account management lives
// outside this service; we only carry what delivery needs.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoleAdmin implies membership in every conversation.
const RoleAdmin = "ADMIN"

// Conversation is a channel (many members) or a direct thread (exactly two).
// For direct threads User1ID < User2ID always holds, so a lookup by
// unordered pair is a single-row match.
type Conversation struct {
	ID        string           `json:"id" db:"id"`
	Kind      ConversationKind `json:"kind" db:"kind"`
	Name      *string          `json:"name,omitempty" db:"name"`
	User1ID   *string          `json:"user1_id,omitempty" db:"user1_id"`
	User2ID   *string          `json:"user2_id,omitempty" db:"user2_id"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Membership ties a user to a channel. Direct threads carry their two
// participants inline and have no membership rows.
type Membership struct {
	UserID         string    `json:"user_id" db:"user_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Message belongs to exactly one conversation. CreatedAt is the
// authoritative ordering key. DeletedAt is only ever set for channel
// messages; direct-thread messages are removed outright.
type Message struct {
	ID             string       `json:"id" db:"id"`
	ConversationID string       `json:"conversation_id" db:"conversation_id"`
	SenderID       string       `json:"sender_id" db:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty" db:"sender_name"`
	Content        string       `json:"content" db:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	EditedAt       *time.Time   `json:"edited_at,omitempty" db:"edited_at"`
	DeletedAt      *time.Time   `json:"-" db:"deleted_at"`
}

// Attachment is a reference to an uploaded file; storage itself is handled
// elsewhere.
type Attachment struct {
	ID        string `json:"id" db:"id"`
	MessageID string `json:"-" db:"message_id"`
	Name      string `json:"name" db:"name"`
	URL       string `json:"url" db:"url"`
	MimeType  string `json:"mime_type" db:"mime_type"`
	Size      int64  `json:"size" db:"size"`
}

// ReadReceipt holds the per-user, per-conversation read watermark.
// LastReadAt is monotonically non-decreasing; rows are never deleted.
type ReadReceipt struct {
	UserID         string    `json:"user_id" db:"user_id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	LastReadAt     time.Time `json:"last_read_at" db:"last_read_at"`
}
