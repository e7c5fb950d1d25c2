package api

import (
	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/models"
)

// HealthResponse is the HTTP response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// TaskSubmitResponse is the HTTP response for POST /pipeline/tasks.
type TaskSubmitResponse struct {
	TaskID uuid.UUID         `json:"task_id"`
	Status models.TaskStatus `json:"status"`
}

// StatusResponse is a minimal status acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}
