// Package queue provides the durable task queue worker loop.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/mediateca/vodrag/pkg/models"
)

// ErrNoTasksAvailable indicates no pending tasks are in the queue.
var ErrNoTasksAvailable = errors.New("no tasks available")

// Executor routes one claimed task by type and runs it to completion.
//
// The executor owns the entire task lifecycle internally: it reports progress
// to the task row while running and returns only the terminal outcome. The
// worker handles claiming, timeout, panic containment, and the terminal
// status write.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one task run. Intermediate state
// (videos, segments, chunks, progress) was already written by the executor.
type ExecutionResult struct {
	Status       models.TaskStatus // completed or failed
	Result       *string           // optional result payload
	ErrorMessage *string           // failure reason, or partial-success note
}

// FailedResult builds a failed ExecutionResult with the given message.
func FailedResult(message string) *ExecutionResult {
	return &ExecutionResult{Status: models.TaskStatusFailed, ErrorMessage: &message}
}

// CompletedResult builds a completed ExecutionResult.
func CompletedResult(result *string, errorMessage *string) *ExecutionResult {
	return &ExecutionResult{Status: models.TaskStatusCompleted, Result: result, ErrorMessage: errorMessage}
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"` // "idle" or "working"
	CurrentTaskID  string    `json:"current_task_id,omitempty"`
	TasksProcessed int       `json:"tasks_processed"`
	LastActivity   time.Time `json:"last_activity"`
}

// PoolHealth contains aggregated health information for the worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	PoolID        string         `json:"pool_id"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
