package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// Pool runs a fixed set of queue workers inside one process. On startup it
// resets tasks this process abandoned in a previous run, then fans the queue
// notification hint out to every worker so each can wake independently.
//
// Claiming locks the task row, so running several workers (or several pool
// processes) never double-processes a task.
type Pool struct {
	id       string
	tasks    *store.TaskStore
	config   *config.QueueConfig
	executor Executor
	wakeup   <-chan struct{} // shared notification hint; nil means poll-only

	workers     []*Worker
	workerChans []chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewPool creates a worker pool. id names this process instance in logs and
// health output; wakeup may be nil, in which case workers poll on a timer only.
func NewPool(id string, tasks *store.TaskStore, cfg *config.QueueConfig, executor Executor, wakeup <-chan struct{}) *Pool {
	return &Pool{
		id:       id,
		tasks:    tasks,
		config:   cfg,
		executor: executor,
		wakeup:   wakeup,
		stopCh:   make(chan struct{}),
	}
}

// Start recovers tasks left running by a previous crash, then launches the
// workers. It is idempotent.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	// Boot-time recovery only: a task in running state at startup was
	// orphaned by a crashed or killed process. Resetting on a timer instead
	// would clobber tasks legitimately running in other live processes.
	reset, err := p.tasks.ResetStuck(ctx)
	if err != nil {
		return fmt.Errorf("resetting stuck tasks: %w", err)
	}
	if reset > 0 {
		slog.Warn("Reset stuck tasks from previous run", "count", reset, "pool_id", p.id)
	}

	count := p.config.WorkerCount
	if count <= 0 {
		count = 1
	}

	for i := 0; i < count; i++ {
		var ch chan struct{}
		var hint <-chan struct{}
		if p.wakeup != nil {
			ch = make(chan struct{}, 1)
			hint = ch
		}
		worker := NewWorker(fmt.Sprintf("%s-worker-%d", p.id, i), p.tasks, p.config, p.executor, hint)
		p.workers = append(p.workers, worker)
		p.workerChans = append(p.workerChans, ch)
		worker.Start(ctx)
	}

	if p.wakeup != nil {
		p.wg.Add(1)
		go p.forwardWakeups(ctx)
	}

	p.started = true
	slog.Info("Worker pool started", "pool_id", p.id, "workers", count)
	return nil
}

// Stop shuts the pool down gracefully: workers finish their in-flight task
// before exiting. Safe to call multiple times.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
	slog.Info("Worker pool stopped", "pool_id", p.id)
}

// forwardWakeups relays the shared notification hint to every worker's own
// channel. Sends are non-blocking: a worker that is already awake or mid-task
// does not need the hint buffered beyond one pending wakeup.
func (p *Pool) forwardWakeups(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case _, ok := <-p.wakeup:
			if !ok {
				return
			}
			for _, ch := range p.workerChans {
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Health reports pool health, including database reachability and the number
// of tasks waiting in the queue.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	health := &PoolHealth{
		PoolID:       p.id,
		TotalWorkers: len(p.workers),
	}

	pending := models.TaskStatusPending
	depth, err := p.tasks.Count(ctx, &pending)
	if err != nil {
		health.DBError = err.Error()
	} else {
		health.DBReachable = true
		health.QueueDepth = depth
	}

	for _, w := range p.workers {
		wh := w.Health()
		if wh.Status == string(WorkerStatusWorking) {
			health.ActiveWorkers++
		}
		health.WorkerStats = append(health.WorkerStats, wh)
	}

	health.IsHealthy = health.DBReachable
	return health
}
