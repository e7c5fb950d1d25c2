package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/metrics"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// WorkerStatus is the lifecycle state a worker reports through Health.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that claims and processes tasks. It wakes
// on queue notifications and falls back to a timed poll, so a missed
// notification only delays work instead of losing it. Multiple worker
// processes may run concurrently; the claim lock keeps them from colliding.
type Worker struct {
	id       string
	tasks    *store.TaskStore
	config   *config.QueueConfig
	executor Executor
	wakeup   <-chan struct{} // notification hint; nil means poll-only
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

// NewWorker creates a new queue worker. wakeup may be nil, in which case the
// worker relies on the poll interval alone.
func NewWorker(id string, tasks *store.TaskStore, cfg *config.QueueConfig, executor Executor, wakeup <-chan struct{}) *Worker {
	return &Worker{
		id:           id,
		tasks:        tasks,
		config:       cfg,
		executor:     executor,
		wakeup:       wakeup,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight task to finish.
// Repeated calls are harmless.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health snapshots the worker state for health reporting.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

// run is the main worker loop. It never exits on task errors: an unexpected
// failure is logged, the loop backs off briefly and keeps claiming.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker stop requested, exiting loop")
			return
		case <-ctx.Done():
			log.Info("Worker context done, exiting loop")
			return
		default:
			if err := w.claimAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) {
					w.waitForWork(w.pollInterval())
					continue
				}
				log.Error("Error processing task", "error", err)
				w.sleep(time.Second) // keep a wedged store from spinning the loop
			}
		}
	}
}

// waitForWork blocks until a queue notification arrives, the poll interval
// elapses, or stop is signalled. The notification is only a hint; the poll
// fallback guarantees the queue is re-read even when notifications are lost.
func (w *Worker) waitForWork(d time.Duration) {
	if w.wakeup == nil {
		w.sleep(d)
		return
	}
	select {
	case <-w.stopCh:
	case <-w.wakeup:
	case <-time.After(d):
	}
}

// sleep pauses for d unless stop cuts it short.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// claimAndProcess claims the oldest pending task and runs it to a terminal
// state.
func (w *Worker) claimAndProcess(ctx context.Context) error {
	task, err := w.tasks.ClaimOne(ctx)
	if err != nil {
		return fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return ErrNoTasksAvailable
	}

	log := slog.With("task_id", task.ID, "task_type", task.Type, "worker_id", w.id)
	log.Info("Task claimed")
	metrics.RecordTaskClaimed(string(task.Type))

	w.setStatus(WorkerStatusWorking, task.ID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	// The task context derives from the loop context, not the stop latch:
	// a graceful shutdown lets the in-flight task run to completion.
	taskCtx, cancelTask := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancelTask()

	start := time.Now()
	result := w.execute(taskCtx, task)

	if result == nil {
		switch {
		case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
			result = FailedResult(fmt.Sprintf("task timed out after %v", w.config.TaskTimeout))
		case errors.Is(taskCtx.Err(), context.Canceled):
			result = FailedResult("task cancelled")
		default:
			result = FailedResult("executor returned no result")
		}
	}

	// Terminal write uses a background context — the task context may
	// already be cancelled or expired.
	if err := w.finalize(context.Background(), task, result); err != nil {
		log.Error("Failed to write terminal task status", "error", err)
		return err
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()

	metrics.RecordTaskProcessed(string(task.Type), string(result.Status), time.Since(start))
	log.Info("Task processing complete", "status", result.Status)
	return nil
}

// execute runs the executor with panic containment, so a bug in one task
// fails that task instead of crashing the worker process.
func (w *Worker) execute(ctx context.Context, task *models.Task) (result *ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Executor panicked",
				"task_id", task.ID, "panic", r, "stack", string(debug.Stack()))
			result = FailedResult(fmt.Sprintf("internal error: %v", r))
		}
	}()
	return w.executor.Execute(ctx, task)
}

// finalize writes the terminal task status.
func (w *Worker) finalize(ctx context.Context, task *models.Task, result *ExecutionResult) error {
	if result.Status == models.TaskStatusCompleted {
		return w.tasks.Complete(ctx, task.ID, result.Result, result.ErrorMessage)
	}

	message := "task failed"
	if result.ErrorMessage != nil {
		message = *result.ErrorMessage
	}
	return w.tasks.Fail(ctx, task.ID, message)
}

// pollInterval spreads claim attempts uniformly over
// [PollInterval-jitter, PollInterval+jitter] so idle workers do not hit the
// queue in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus records the transition for Health.
func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}
