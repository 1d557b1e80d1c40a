package chat

import "errors"

// Error taxonomy for the delivery core. Handlers map these onto HTTP status
// codes; everything else that bubbles up from the stores is treated as a
// persistence failure and surfaced as a server error.
var (
	// ErrNotAMember rejects callers outside the conversation.
	ErrNotAMember = errors.New("not a member of this conversation")

	// ErrInvalidInput rejects structurally malformed requests.
	ErrInvalidInput = errors.New("invalid request")

	// ErrEmptyContent rejects messages with no content and no attachments.
	ErrEmptyContent = errors.New("content or attachment required")

	// ErrContentTooLong rejects oversized message bodies.
	ErrContentTooLong = errors.New("content exceeds maximum length")

	// ErrRateLimited means the sender exhausted their send window. Retry
	// later; the request itself was well formed.
	ErrRateLimited = errors.New("rate limit exceeded, slow down")

	// ErrNotFound covers missing conversations and messages.
	ErrNotFound = errors.New("not found")

	// ErrNotSender rejects edits/deletes by anyone but the author.
	ErrNotSender = errors.New("only the sender may modify a message")

	// ErrSelfThread rejects opening a direct thread with yourself.
	ErrSelfThread = errors.New("cannot open a thread with yourself")
)
