package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hallway/internal/api/auth"
	"github.com/hallway/internal/chat"
	"github.com/hallway/pkg/models"
)

// Handlers holds the HTTP handlers over the delivery core.
type Handlers struct {
	svc          *chat.Service
	pollInterval time.Duration
}

// ClientConfigResponse tells clients how the server wants to be polled.
type ClientConfigResponse struct {
	PollIntervalSec int `json:"poll_interval_sec"`
}

func (h *Handlers) clientConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, ClientConfigResponse{
		PollIntervalSec: int(h.pollInterval / time.Second),
	})
}

// SendMessageRequest is the POST /chat/send payload.
type SendMessageRequest struct {
	ConversationID string              `json:"conversation_id"`
	Content        string              `json:"content"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

// SendMessageResponse echoes the store-assigned id and timestamp so the
// client can render optimistically without waiting for the push echo.
type SendMessageResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handlers) sendMessage(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	msg, err := h.svc.SendMessage(c.Request().Context(), chat.SendInput{
		ConversationID: req.ConversationID,
		SenderID:       identity.UserID,
		SenderRole:     identity.Role,
		Content:        req.Content,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, SendMessageResponse{ID: msg.ID, CreatedAt: msg.CreatedAt})
}

func (h *Handlers) fetchMessages(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	conversationID := c.QueryParam("conversationId")
	if conversationID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "conversationId required"})
	}
	afterID := c.QueryParam("after")

	msgs, err := h.svc.FetchAfter(c.Request().Context(), identity.UserID, identity.Role, conversationID, afterID)
	if err != nil {
		return writeError(c, err)
	}

	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(http.StatusOK, msgs)
}

// MarkReadRequest is the POST /chat/read payload.
type MarkReadRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h *Handlers) markRead(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	var req MarkReadRequest
	if err := c.Bind(&req); err != nil || req.ConversationID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "conversation_id required"})
	}

	if err := h.svc.MarkRead(c.Request().Context(), identity.UserID, identity.Role, req.ConversationID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// EditMessageRequest is the PUT /chat/message payload.
type EditMessageRequest struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

func (h *Handlers) editMessage(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	var req EditMessageRequest
	if err := c.Bind(&req); err != nil || req.MessageID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "message_id and content required"})
	}

	if err := h.svc.EditMessage(c.Request().Context(), identity.UserID, req.MessageID, req.Content); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) deleteMessage(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	messageID := c.QueryParam("id")
	if messageID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "id required"})
	}

	if err := h.svc.DeleteMessage(c.Request().Context(), identity.UserID, messageID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// CreateThreadRequest is the POST /dm/thread payload.
type CreateThreadRequest struct {
	TargetUserID string `json:"target_user_id"`
}

func (h *Handlers) createThread(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	var req CreateThreadRequest
	if err := c.Bind(&req); err != nil || req.TargetUserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "target_user_id required"})
	}

	threadID, err := h.svc.CreateOrGetThread(c.Request().Context(), identity.UserID, req.TargetUserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"thread_id": threadID})
}

func (h *Handlers) sidebar(c echo.Context) error {
	identity := auth.CurrentIdentity(c)

	counts, err := h.svc.UnreadCounts(c.Request().Context(), identity.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"unread": counts})
}
