// vodrag API server — serves the HTTP API for channels, videos, chat,
// pipeline tasks, and settings.
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

	"github.com/mediateca/vodrag/pkg/api"
	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/database"
	"github.com/mediateca/vodrag/pkg/llm"
	"github.com/mediateca/vodrag/pkg/services"
	"github.com/mediateca/vodrag/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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

	httpPort := getEnv("HTTP_PORT", "8000")

	slog.Info("Starting vodrag API",
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Configuration failed to load", "error", err)
		os.Exit(1)
	}
	cfg.LogSummary("backend")

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

	// Seed runtime-tunable settings once; reads fall back to config defaults,
	// so a seed failure does not block startup.
	settingsService := services.NewSettingsService(stores.Settings)
	if err := settingsService.Seed(ctx, services.ComponentBackend, services.DefaultBackendSettings(cfg)); err != nil {
		slog.Error("Failed to seed backend settings", "error", err)
	}

	llmClient := llm.NewOpenAIClient(cfg.LLM)

	channelService := services.NewChannelService(stores.Channels)
	videoService := services.NewVideoService(stores.Videos)
	chatService := services.NewChatService(stores.Chats)
	taskService := services.NewTaskService(stores.Tasks, stores.Stats)
	retriever := services.NewRetrieverService(stores.Chunks, settingsService, cfg.RAG)
	sqlAgent := services.NewSQLAgentService(dbClient.Pool(), llmClient)
	ragService := services.NewRAGService(
		stores.Chats, stores.Videos, stores.Chunks, stores.Tasks,
		retriever, sqlAgent, llmClient, cfg.RAG,
	)
	slog.Info("Service layer ready")

	httpServer := api.NewServer(
		channelService, videoService, chatService,
		taskService, settingsService, ragService,
		stores.Tasks,
	)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
