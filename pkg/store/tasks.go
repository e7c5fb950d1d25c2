package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/models"
)

const taskColumns = `id, task_type, status, request, progress, error_message, result, created_at, started_at, completed_at`

// TaskStore persists queue tasks and implements the single-consumer lease.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a TaskStore using an existing pool.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Enqueue inserts a new task in pending state. The insert trigger notifies
// listening workers on the task_queue channel.
func (s *TaskStore) Enqueue(ctx context.Context, taskType models.TaskType, request any) (*models.Task, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task request: %w", err)
	}

	task := &models.Task{
		ID:      uuid.New(),
		Type:    taskType,
		Status:  models.TaskStatusPending,
		Request: payload,
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_tasks (id, task_type, status, request)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		task.ID, task.Type, task.Status, task.Request,
	).Scan(&task.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return task, nil
}

// ClaimOne atomically leases the oldest pending task: within one transaction
// it selects the row with FOR UPDATE SKIP LOCKED, flips it to running, and
// stamps started_at. Returns nil when no pending task is available. Concurrent
// callers never claim the same row.
func (s *TaskStore) ClaimOne(ctx context.Context) (*models.Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	task, err := scanTask(tx.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM pipeline_tasks
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		models.TaskStatusPending))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select pending task: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE pipeline_tasks
		 SET status = $2, started_at = now()
		 WHERE id = $1
		 RETURNING started_at`,
		task.ID, models.TaskStatusRunning,
	).Scan(&task.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark task running: %w", err)
	}
	task.Status = models.TaskStatusRunning

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return task, nil
}

// UpdateProgress writes the task's progress percentage and, when non-nil, an
// intermediate result snippet.
func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, result *string) error {
	var err error
	if result != nil {
		_, err = s.pool.Exec(ctx,
			`UPDATE pipeline_tasks SET progress = $2, result = $3 WHERE id = $1`,
			id, progress, *result)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE pipeline_tasks SET progress = $2 WHERE id = $1`,
			id, progress)
	}
	if err != nil {
		return fmt.Errorf("failed to update task progress: %w", err)
	}
	return nil
}

// Complete transitions the task to completed with progress 100, stamping
// completed_at and the optional result.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, result *string, errorMessage *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = $2, progress = 100, result = COALESCE($3, result),
		     error_message = $4, completed_at = now()
		 WHERE id = $1`,
		id, models.TaskStatusCompleted, result, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// Fail transitions the task to failed with the given error message.
func (s *TaskStore) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = $2, error_message = $3, completed_at = now()
		 WHERE id = $1`,
		id, models.TaskStatusFailed, errorMessage)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// ResetStuck fails every running task. Called on worker boot: a row still
// marked running at that point belonged to a process that died mid-task, since
// a live worker holds its claim until the task reaches a terminal state.
func (s *TaskStore) ResetStuck(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_tasks
		 SET status = $2, error_message = 'worker restarted', completed_at = now()
		 WHERE status = $1`,
		models.TaskStatusRunning, models.TaskStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Get returns a task by ID.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM pipeline_tasks WHERE id = $1`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List returns tasks ordered newest first, optionally filtered by status.
func (s *TaskStore) List(ctx context.Context, status *models.TaskStatus, skip, limit int) ([]models.Task, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT `+taskColumns+`
			 FROM pipeline_tasks WHERE status = $1
			 ORDER BY created_at DESC OFFSET $2 LIMIT $3`,
			*status, skip, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+taskColumns+`
			 FROM pipeline_tasks
			 ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
			skip, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Count returns the total number of tasks, optionally filtered by status.
func (s *TaskStore) Count(ctx context.Context, status *models.TaskStatus) (int, error) {
	var (
		count int
		err   error
	)
	if status != nil {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM pipeline_tasks WHERE status = $1`, *status).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM pipeline_tasks`).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// Delete removes a task. Returns pgx.ErrNoRows when it does not exist.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pipeline_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteTerminalBefore removes terminal tasks of the given type whose
// completed_at is older than the cutoff. Used by the retention sweeper.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, taskType models.TaskType, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pipeline_tasks
		 WHERE task_type = $1
		   AND status IN ($2, $3)
		   AND completed_at < $4`,
		taskType, models.TaskStatusCompleted, models.TaskStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TerminalStates returns the id -> status map of every terminal task. The SSE
// broadcaster seeds each subscriber's dedup map with it so a fresh connection
// is not flooded with historical updates.
func (s *TaskStore) TerminalStates(ctx context.Context) (map[uuid.UUID]models.TaskStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status FROM pipeline_tasks WHERE status IN ($1, $2)`,
		models.TaskStatusCompleted, models.TaskStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminal tasks: %w", err)
	}
	defer rows.Close()

	states := make(map[uuid.UUID]models.TaskStatus)
	for rows.Next() {
		var (
			id     uuid.UUID
			status models.TaskStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan terminal task: %w", err)
		}
		states[id] = status
	}
	return states, rows.Err()
}

// RecentTerminal returns terminal tasks whose completed_at falls within the
// given window of now, newest first.
func (s *TaskStore) RecentTerminal(ctx context.Context, window time.Duration) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM pipeline_tasks
		 WHERE status IN ($1, $2) AND completed_at > now() - $3::interval
		 ORDER BY completed_at DESC`,
		models.TaskStatusCompleted, models.TaskStatusFailed, window)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent terminal tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.Request, &t.Progress,
		&t.ErrorMessage, &t.Result, &t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
