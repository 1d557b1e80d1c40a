package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient(t *testing.T) {
	var lastAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		after := r.URL.Query().Get("after")
		if after == "m1" {
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "m2", "conversation_id": "c1", "sender_id": "bob", "content": "later"},
			})
			return
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": "m1", "conversation_id": "c1", "sender_id": "alice", "content": "first"},
		})
	})
	mux.HandleFunc("/api/v1/chat/send", func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Content == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "message cannot be empty"})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sendResponse{ID: "m9", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	})
	mux.HandleFunc("/api/v1/sidebar", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]map[string]int{"unread": {"c1": 3}})
	})
	mux.HandleFunc("/api/v1/chat/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"poll_interval_sec": 7})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := NewAPI(srv.URL, "token-123")
	ctx := context.Background()

	t.Run("FetchMessagesAfter", func(t *testing.T) {
		msgs, err := api.FetchMessagesAfter(ctx, "c1", "")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m1", msgs[0].ID)
		assert.Equal(t, "Bearer token-123", lastAuth)

		msgs, err = api.FetchMessagesAfter(ctx, "c1", "m1")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m2", msgs[0].ID)
	})

	t.Run("FetcherBindsConversation", func(t *testing.T) {
		fetch := api.Fetcher("c1")
		msgs, err := fetch(ctx, "m1")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "m2", msgs[0].ID)
	})

	t.Run("Send", func(t *testing.T) {
		id, createdAt, err := api.Send(ctx, "c1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "m9", id)
		assert.False(t, createdAt.IsZero())
	})

	t.Run("ErrorEnvelopeSurfaced", func(t *testing.T) {
		_, _, err := api.Send(ctx, "c1", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "message cannot be empty")
	})

	t.Run("PollInterval", func(t *testing.T) {
		interval, err := api.PollInterval(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7*time.Second, interval)
	})

	t.Run("UnreadCounts", func(t *testing.T) {
		counts, err := api.UnreadCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"c1": 3}, counts)
	})
}
