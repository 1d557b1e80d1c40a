package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/hallway/internal/chat"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the chat error taxonomy onto HTTP. Anything unrecognized
// is a persistence-path failure: those always surface as a server error,
// nothing is silently lost.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, chat.ErrInvalidInput),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrContentTooLong),
		errors.Is(err, chat.ErrSelfThread):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, chat.ErrNotAMember), errors.Is(err, chat.ErrNotSender):
		status = http.StatusForbidden
	case errors.Is(err, chat.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
		return c.JSON(status, errorResponse{Error: "server error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}
