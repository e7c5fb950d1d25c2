// vodrag worker — claims queued tasks and runs the video pipeline:
// channel ingest, transcription, chunking, and embedding.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mediateca/vodrag/pkg/cleanup"
	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/database"
	"github.com/mediateca/vodrag/pkg/embedding"
	"github.com/mediateca/vodrag/pkg/events"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/media"
	"github.com/mediateca/vodrag/pkg/metrics"
	"github.com/mediateca/vodrag/pkg/pipeline"
	"github.com/mediateca/vodrag/pkg/queue"
	"github.com/mediateca/vodrag/pkg/services"
	"github.com/mediateca/vodrag/pkg/store"
	"github.com/mediateca/vodrag/pkg/stt"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolveWorkerID determines the worker instance identifier for logs and
// health output. Priority: WORKER_ID env > HOSTNAME env > "local"
func resolveWorkerID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("No .env file found, relying on process environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Environment loaded", "path", envPath)
	}

	workerID := resolveWorkerID()
	metricsAddr := getEnv("METRICS_ADDR", ":9090")

	slog.Info("Starting vodrag worker",
		"worker_id", workerID,
		"metrics_addr", metricsAddr,
		"config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Configuration failed to load", "error", err)
		os.Exit(1)
	}
	cfg.LogSummary("worker")

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Database connection established")

	stores := store.NewStores(dbClient.Pool())

	settingsService := services.NewSettingsService(stores.Settings)
	if err := settingsService.Seed(ctx, services.ComponentWorker, services.DefaultWorkerSettings(cfg)); err != nil {
		slog.Error("Failed to seed worker settings", "error", err)
	}

	// The LISTEN connection is a latency optimization only: if it cannot be
	// established the workers still drain the queue on the poll interval.
	var wakeup <-chan struct{}
	listener := events.NewNotifyListener(dbClient.DSN(), events.TaskQueueChannel)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notify listener, falling back to polling", "error", err)
		listener = nil
	} else {
		wakeup = listener.Wakeup()
	}

	fetcher, err := media.NewYtDlpFetcher(cfg.Media, cfg.Pipeline.AudioDir)
	if err != nil {
		slog.Error("Failed to initialize media fetcher", "error", err)
		os.Exit(1)
	}
	transcriber := stt.NewHTTPTranscriber(cfg.STT)
	encoder := embedding.NewHTTPEncoder(cfg.Embedding)
	llmClient := llm.NewOpenAIClient(cfg.LLM)

	executor := pipeline.NewExecutor(cfg.Pipeline, stores, fetcher, transcriber, encoder, llmClient)

	pool := queue.NewPool(workerID, stores.Tasks, cfg.Queue, executor, wakeup)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	cleanupService := cleanup.NewService(cfg.Retention, stores.Tasks)
	cleanupService.Start(ctx)

	exporter := metrics.NewExporter(metricsAddr)
	go func() {
		if err := exporter.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics exporter error", "error", err)
		}
	}()

	slog.Info("Worker started successfully",
		"worker_id", workerID,
		"workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Received shutdown signal", "signal", sig)

	// Graceful shutdown: the in-flight task may be a long transcription, so
	// the pool gets the full configured budget before the process exits.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, in-flight tasks will be reset on next boot")
	}

	cleanupService.Stop()
	if listener != nil {
		listener.Stop(ctx)
	}

	exporterCtx, exporterCancel := context.WithTimeout(ctx, 5*time.Second)
	defer exporterCancel()
	if err := exporter.Shutdown(exporterCtx); err != nil {
		slog.Error("Metrics exporter shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
