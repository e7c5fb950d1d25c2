package config

import "time"

// QueueConfig controls how the worker polls, claims, and shuts down.
type QueueConfig struct {
	// WorkerCount is the number of claim loops per worker process. Claims
	// take the row lock, so raising this never double-runs a task.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the fallback claim interval when no NOTIFY arrives.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// ListenTimeout bounds one blocking wait on the LISTEN connection before
	// the loop re-checks the queue anyway. The notification is a hint, not a
	// guarantee; every claim path still reads the queue.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// TaskTimeout is the maximum time a single task may run.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// GracefulShutdownTimeout is the max time to wait for the in-flight task
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             1,
		PollInterval:            5 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		ListenTimeout:           30 * time.Second,
		TaskTimeout:             2 * time.Hour,
		GracefulShutdownTimeout: 10 * time.Minute,
	}
}
