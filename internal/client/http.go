package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hallway/pkg/models"
)

// API is a thin HTTP client for the hallway server, used by hallctl and by
// the watcher's fetch path.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPI creates a client for the given server. token is the caller's
// bearer token.
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchMessagesAfter pulls a page of messages from the reconciliation
// endpoint.
func (a *API) FetchMessagesAfter(ctx context.Context, conversationID, afterID string) ([]models.Message, error) {
	q := url.Values{"conversationId": {conversationID}}
	if afterID != "" {
		q.Set("after", afterID)
	}

	var msgs []models.Message
	if err := a.do(ctx, http.MethodGet, "/api/v1/chat/messages?"+q.Encode(), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Fetcher binds a conversation id into a FetchFunc for a Watcher.
func (a *API) Fetcher(conversationID string) FetchFunc {
	return func(ctx context.Context, afterID string) ([]models.Message, error) {
		return a.FetchMessagesAfter(ctx, conversationID, afterID)
	}
}

type sendRequest struct {
	ConversationID string              `json:"conversation_id"`
	Content        string              `json:"content"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

type sendResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Send posts a new message and returns its id and timestamp.
func (a *API) Send(ctx context.Context, conversationID, content string) (string, time.Time, error) {
	var resp sendResponse
	err := a.do(ctx, http.MethodPost, "/api/v1/chat/send",
		sendRequest{ConversationID: conversationID, Content: content}, &resp)
	if err != nil {
		return "", time.Time{}, err
	}
	return resp.ID, resp.CreatedAt, nil
}

// MarkRead advances the caller's watermark for the conversation.
func (a *API) MarkRead(ctx context.Context, conversationID string) error {
	return a.do(ctx, http.MethodPost, "/api/v1/chat/read",
		map[string]string{"conversation_id": conversationID}, nil)
}

// PollInterval asks the server how often it wants to be polled. Zero means
// the server did not advertise one; callers fall back to their own default.
func (a *API) PollInterval(ctx context.Context) (time.Duration, error) {
	var resp struct {
		PollIntervalSec int `json:"poll_interval_sec"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/chat/config", nil, &resp); err != nil {
		return 0, err
	}
	return time.Duration(resp.PollIntervalSec) * time.Second, nil
}

// UnreadCounts fetches the caller's per-conversation unread counts.
func (a *API) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var resp struct {
		Unread map[string]int `json:"unread"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/sidebar", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Unread, nil
}

func (a *API) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
