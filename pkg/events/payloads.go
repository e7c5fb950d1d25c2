package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/models"
)

// SSE event names emitted on the pipeline event stream.
const (
	SSEEventConnected  = "connected"
	SSEEventTaskUpdate = "task_update"
	SSEEventHeartbeat  = "heartbeat"
	SSEEventError      = "error"
)

// TaskView is the wire shape of a task inside a task_update event.
type TaskView struct {
	ID           uuid.UUID  `json:"id"`
	TaskType     string     `json:"task_type"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message"`
	Result       *string    `json:"result"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// TaskUpdatePayload is the JSON data of a task_update event.
type TaskUpdatePayload struct {
	Type string   `json:"type"`
	Task TaskView `json:"task"`
}

// NewTaskUpdate builds the task_update payload for a task.
func NewTaskUpdate(t models.Task) TaskUpdatePayload {
	return TaskUpdatePayload{
		Type: SSEEventTaskUpdate,
		Task: TaskView{
			ID:           t.ID,
			TaskType:     string(t.Type),
			Status:       string(t.Status),
			Progress:     t.Progress,
			ErrorMessage: t.ErrorMessage,
			Result:       t.Result,
			CompletedAt:  t.CompletedAt,
		},
	}
}
