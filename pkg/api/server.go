// Package api implements the HTTP surface: catalog CRUD, the streaming
// chat endpoint, task submission, the pipeline event stream, and runtime
// settings.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/mediateca/vodrag/pkg/services"
	"github.com/mediateca/vodrag/pkg/store"
)

// Server is the HTTP server. All routes are registered at construction.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	channelService  *services.ChannelService
	videoService    *services.VideoService
	chatService     *services.ChatService
	taskService     *services.TaskService
	settingsService *services.SettingsService
	ragService      *services.RAGService
	tasks           *store.TaskStore
}

// NewServer creates the API server and registers its routes.
func NewServer(
	channelService *services.ChannelService,
	videoService *services.VideoService,
	chatService *services.ChatService,
	taskService *services.TaskService,
	settingsService *services.SettingsService,
	ragService *services.RAGService,
	tasks *store.TaskStore,
) *Server {
	s := &Server{
		channelService:  channelService,
		videoService:    videoService,
		chatService:     chatService,
		taskService:     taskService,
		settingsService: settingsService,
		ragService:      ragService,
		tasks:           tasks,
	}
	s.echo = s.buildRouter()
	return s
}

// buildRouter wires middleware and routes. Collection routes are registered
// with and without the trailing slash so both URL forms work.
func (s *Server) buildRouter() *echo.Echo {
	e := echo.New()
	e.Use(corsHeaders())
	e.Use(browserHeaders())

	e.GET("/health", s.healthHandler)

	v1 := e.Group("/api/v1")

	channels := v1.Group("/channels")
	channels.GET("", s.listChannelsHandler)
	channels.GET("/", s.listChannelsHandler)
	channels.POST("", s.createChannelHandler)
	channels.POST("/", s.createChannelHandler)
	channels.GET("/:id", s.getChannelHandler)
	channels.PATCH("/:id", s.updateChannelHandler)
	channels.DELETE("/:id", s.deleteChannelHandler)

	videos := v1.Group("/videos")
	videos.GET("", s.listVideosHandler)
	videos.GET("/", s.listVideosHandler)
	videos.GET("/pending/download", s.pendingDownloadHandler)
	videos.GET("/pending/transcription", s.pendingTranscriptionHandler)
	videos.GET("/:id", s.getVideoHandler)

	chat := v1.Group("/chat")
	chat.GET("/sessions", s.listSessionsHandler)
	chat.GET("/sessions/:id", s.getSessionHandler)
	chat.DELETE("/sessions/:id", s.deleteSessionHandler)
	chat.POST("/ask_stream", s.askStreamHandler)

	pipeline := v1.Group("/pipeline")
	pipeline.GET("/stats", s.pipelineStatsHandler)
	pipeline.GET("/tasks", s.listTasksHandler)
	pipeline.POST("/tasks", s.createTaskHandler)
	pipeline.GET("/tasks/:id", s.getTaskHandler)
	pipeline.DELETE("/tasks/:id", s.deleteTaskHandler)
	pipeline.GET("/events", s.pipelineEventsHandler)

	settings := v1.Group("/settings")
	settings.POST("", s.createSettingHandler)
	settings.POST("/", s.createSettingHandler)
	settings.GET("/:component", s.getSettingsHandler)
	settings.PUT("/:component/:section/:key", s.updateSettingHandler)
	settings.DELETE("/:component/:section/:key", s.deleteSettingHandler)

	return e
}

// Start serves HTTP on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves HTTP on an existing listener. Tests use this to
// bind a random port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
