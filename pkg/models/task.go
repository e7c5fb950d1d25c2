// Package models defines the domain entities shared by the API and the worker.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

// Task status constants. Transitions are strictly
// pending → running → {completed|failed}; terminal states are permanent.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskType discriminates the task payload.
type TaskType string

const (
	// TaskTypePipeline runs the full ingest→transcribe→chunk→embed pipeline
	// for one channel. Submitted through the public API.
	TaskTypePipeline TaskType = "pipeline"

	// TaskTypeEmbedQuestion encodes a single question into a query vector and
	// stores it in the task result. Enqueued internally by the ask path only.
	TaskTypeEmbedQuestion TaskType = "embed_question"
)

// Task is a durable unit of work claimed by exactly one worker at a time.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	Type         TaskType        `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	Request      json.RawMessage `json:"request,omitempty"`
	Progress     int             `json:"progress"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Result       *string         `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// PipelineRequest is the payload for TaskTypePipeline.
type PipelineRequest struct {
	ChannelURL string `json:"channel_url"`
	MaxVideos  int    `json:"max_videos"`
	Language   string `json:"language,omitempty"`
	Download   bool   `json:"download"`
}

// EmbedQuestionRequest is the payload for TaskTypeEmbedQuestion.
type EmbedQuestionRequest struct {
	Question string `json:"question_to_embed"`
}

// PipelineRequest decodes the task payload as a PipelineRequest.
func (t *Task) PipelineRequest() (*PipelineRequest, error) {
	var req PipelineRequest
	if err := json.Unmarshal(t.Request, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EmbedQuestionRequest decodes the task payload as an EmbedQuestionRequest.
func (t *Task) EmbedQuestionRequest() (*EmbedQuestionRequest, error) {
	var req EmbedQuestionRequest
	if err := json.Unmarshal(t.Request, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
