package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mediateca/vodrag/pkg/store"
)

// Reporter receives coarse progress updates from the pipeline stages.
// Implementations must tolerate being called from a stage that later
// fails; progress writes are advisory.
type Reporter interface {
	Update(ctx context.Context, pct int, note string)
}

// taskReporter writes progress onto the task row. Write failures are
// logged and swallowed so a progress hiccup never fails the task.
type taskReporter struct {
	tasks  *store.TaskStore
	taskID uuid.UUID
}

func newTaskReporter(tasks *store.TaskStore, taskID uuid.UUID) *taskReporter {
	return &taskReporter{tasks: tasks, taskID: taskID}
}

func (r *taskReporter) Update(ctx context.Context, pct int, note string) {
	var snippet *string
	if note != "" {
		snippet = &note
	}
	if err := r.tasks.UpdateProgress(ctx, r.taskID, pct, snippet); err != nil {
		slog.Warn("Failed to update task progress", "task_id", r.taskID, "progress", pct, "error", err)
	}
}
