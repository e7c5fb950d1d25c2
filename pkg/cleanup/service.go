// Package cleanup provides data retention for internal queue tasks.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/models"
	"github.com/mediateca/vodrag/pkg/store"
)

// Service periodically removes terminal embed_question tasks past their TTL.
// They exist only to ferry a query vector from worker to chat path, so once
// read they are noise. Pipeline tasks are user-visible history and are only
// deleted explicitly through the API.
//
// The sweep is idempotent and safe to run from multiple processes.
type Service struct {
	config *config.RetentionConfig
	tasks  *store.TaskStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, tasks *store.TaskStore) *Service {
	return &Service{
		config: cfg,
		tasks:  tasks,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"embed_task_ttl", s.config.EmbedTaskTTL,
		"interval", s.config.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepEmbedTasks(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepEmbedTasks(ctx)
		}
	}
}

func (s *Service) sweepEmbedTasks(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EmbedTaskTTL)
	count, err := s.tasks.DeleteTerminalBefore(ctx, models.TaskTypeEmbedQuestion, cutoff)
	if err != nil {
		slog.Error("Retention: embed task sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: removed finished embed tasks", "count", count)
	}
}
