package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// Task submission bounds.
const (
	defaultTaskMaxVideos = 10
	maxTaskMaxVideos     = 100
	defaultTaskPageSize  = 20
	maxTaskPageSize      = 100
)

// TaskPage is one page of the task listing.
type TaskPage struct {
	Tasks    []models.Task `json:"tasks"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// TaskService accepts pipeline submissions and exposes the task queue state.
type TaskService struct {
	tasks *store.TaskStore
	stats *store.StatsStore
}

// NewTaskService creates a new TaskService.
func NewTaskService(tasks *store.TaskStore, stats *store.StatsStore) *TaskService {
	return &TaskService{tasks: tasks, stats: stats}
}

// EnqueuePipeline validates and enqueues a pipeline task. Only the pipeline
// task type is accepted here; question embedding tasks are enqueued by the
// ask path itself.
func (s *TaskService) EnqueuePipeline(httpCtx context.Context, taskType string, req models.PipelineRequest) (*models.Task, error) {
	switch models.TaskType(taskType) {
	case models.TaskTypePipeline:
	case models.TaskTypeEmbedQuestion:
		return nil, NewValidationError("task_type", "embed_question can only be used internally")
	default:
		return nil, NewValidationError("task_type", "must be pipeline")
	}

	req.ChannelURL = strings.TrimSpace(req.ChannelURL)
	if req.ChannelURL == "" {
		return nil, NewValidationError("channel_url", "required")
	}
	if req.MaxVideos == 0 {
		req.MaxVideos = defaultTaskMaxVideos
	}
	if req.MaxVideos < 1 || req.MaxVideos > maxTaskMaxVideos {
		return nil, NewValidationError("max_videos", fmt.Sprintf("must be between 1 and %d", maxTaskMaxVideos))
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	task, err := s.tasks.Enqueue(ctx, models.TaskTypePipeline, req)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return task, nil
}

// List returns one page of tasks, newest first, optionally filtered by status.
func (s *TaskService) List(httpCtx context.Context, status *models.TaskStatus, page, pageSize int) (*TaskPage, error) {
	if status != nil && !validTaskStatus(*status) {
		return nil, NewValidationError("status", "must be one of pending, running, completed, failed")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultTaskPageSize
	}
	if pageSize > maxTaskPageSize {
		pageSize = maxTaskPageSize
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	total, err := s.tasks.Count(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	tasks, err := s.tasks.List(ctx, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	return &TaskPage{Tasks: tasks, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns one task.
func (s *TaskService) Get(httpCtx context.Context, id uuid.UUID) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// Delete removes a task row.
func (s *TaskService) Delete(httpCtx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if err := s.tasks.Delete(ctx, id); err != nil {
		if store.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// PipelineStats returns library-wide processing counters.
func (s *TaskService) PipelineStats(httpCtx context.Context) (*models.PipelineStats, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	stats, err := s.stats.PipelineStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline stats: %w", err)
	}
	return stats, nil
}

func validTaskStatus(s models.TaskStatus) bool {
	switch s {
	case models.TaskStatusPending, models.TaskStatusRunning,
		models.TaskStatusCompleted, models.TaskStatusFailed:
		return true
	}
	return false
}
