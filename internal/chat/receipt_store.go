package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReceiptStore handles the per-user, per-conversation read watermark. Rows
// are created on first mark-read and never deleted.
type ReceiptStore struct {
	db *sql.DB
}

// NewReceiptStore creates a new read-receipt store.
func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// MarkRead advances the watermark to the greater of the stored value and
// now. GREATEST runs inside the database, so two racing mark-read calls can
// never let the older timestamp win; a blind upsert-with-now could.
func (s *ReceiptStore) MarkRead(ctx context.Context, userID, conversationID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_receipts (user_id, conversation_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, conversation_id)
		DO UPDATE SET last_read_at = GREATEST(read_receipts.last_read_at, EXCLUDED.last_read_at)
	`, userID, conversationID, now)
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

// LastReadAt returns the watermark for (user, conversation). An absent row
// means everything is unread, reported as the zero time rather than an
// error.
func (s *ReceiptStore) LastReadAt(ctx context.Context, userID, conversationID string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT last_read_at FROM read_receipts
		WHERE user_id = $1 AND conversation_id = $2
	`, userID, conversationID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}
	return ts, nil
}
