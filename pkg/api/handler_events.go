package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/events"
	"github.com/mediateca/vodrag/pkg/models"
)

const (
	ssePollInterval   = 5 * time.Second
	sseTerminalWindow = 60 * time.Second
)

// pipelineEventsHandler handles GET /api/v1/pipeline/events. Each subscriber
// runs its own poll loop over recently finished tasks and pushes one
// task_update per status change, plus a heartbeat every cycle. Tasks already
// terminal at connect time are suppressed so a reconnect does not replay
// the whole history.
func (s *Server) pipelineEventsHandler(c *echo.Context) error {
	ctx := c.Request().Context()

	var w http.ResponseWriter = c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	writeEvent := func(name string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	seen, err := s.tasks.TerminalStates(ctx)
	if err != nil {
		seen = make(map[uuid.UUID]models.TaskStatus)
	}

	if writeEvent(events.SSEEventConnected, map[string]string{"type": events.SSEEventConnected}) != nil {
		return nil
	}

	ticker := time.NewTicker(ssePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tasks, err := s.tasks.RecentTerminal(ctx, sseTerminalWindow)
			if err != nil {
				if writeEvent(events.SSEEventError, map[string]string{"type": events.SSEEventError, "message": "task poll failed"}) != nil {
					return nil
				}
				continue
			}

			for _, t := range tasks {
				if seen[t.ID] == t.Status {
					continue
				}
				seen[t.ID] = t.Status
				if writeEvent(events.SSEEventTaskUpdate, events.NewTaskUpdate(t)) != nil {
					return nil
				}
			}

			if writeEvent(events.SSEEventHeartbeat, map[string]string{"type": events.SSEEventHeartbeat}) != nil {
				return nil
			}
		}
	}
}
