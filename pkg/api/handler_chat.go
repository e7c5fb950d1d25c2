package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/services"
)

// listSessionsHandler handles GET /api/v1/chat/sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	skip := intQueryParam(c, "skip", 0)
	limit := intQueryParam(c, "limit", 50)

	sessions, err := s.chatService.ListSessions(c.Request().Context(), skip, limit)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, sessions)
}

// getSessionHandler handles GET /api/v1/chat/sessions/:id. The response
// carries the session, its full message history, and its video subset.
func (s *Server) getSessionHandler(c *echo.Context) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return err
	}

	detail, err := s.chatService.GetSessionDetail(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, detail)
}

// deleteSessionHandler handles DELETE /api/v1/chat/sessions/:id.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	id, err := sessionIDParam(c)
	if err != nil {
		return err
	}

	if err := s.chatService.DeleteSession(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// streamLine is one newline-delimited JSON event of the ask stream.
type streamLine struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// askStreamHandler handles POST /api/v1/chat/ask_stream. The response body
// is newline-delimited JSON: a session_id event, optionally a sources event,
// then content deltas until the answer completes. Validation failures are
// reported as a plain JSON error before any streaming starts.
func (s *Server) askStreamHandler(c *echo.Context) error {
	var req services.AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	events, err := s.ragService.AskStream(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}

	var w http.ResponseWriter = c.Response()
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	enc := json.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(streamLine{Type: ev.Type, Data: ev.Data}); err != nil {
			// Client is gone. Keep draining so the producer observes the
			// request context cancellation and stops cleanly.
			for range events {
			}
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	return nil
}

func sessionIDParam(c *echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}
