package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/pkg/models"
)

// SettingsStore persists the user preferences the API exposes.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// Server provides HTTP handlers for the board backend.
type Server struct {
	engine   *gin.Engine
	board    *engine.Board
	monitor  *engine.ActivityMonitor
	settings SettingsStore
	logger   *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
// Every incoming request counts as user activity.
func New(board *engine.Board, monitor *engine.ActivityMonitor, settings SettingsStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine:   router,
		board:    board,
		monitor:  monitor,
		settings: settings,
		logger:   logger,
	}

	router.Use(srv.recordActivity)
	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// recordActivity maps any API request to a single activity signal; the
// engine does not care which concrete surface fired.
func (s *Server) recordActivity(c *gin.Context) {
	s.monitor.Record(time.Now())
	c.Next()
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		workspaces := api.Group("/workspaces")
		{
			workspaces.GET("", s.handleListWorkspaces)
			workspaces.POST("", s.handleCreateWorkspace)
			workspaces.PUT(":id", s.handleUpdateWorkspace)
			workspaces.DELETE(":id", s.handleDeleteWorkspace)
			workspaces.POST(":id/select", s.handleSelectWorkspace)
			workspaces.GET(":id/tasks", s.handleListWorkspaceTasks)
			workspaces.POST(":id/tasks", s.handleCreateTask)
		}

		api.GET("/tasks", s.handleListTasks)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PUT("/tasks/:id", s.handleEditTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/move", s.handleMoveTask)
		api.POST("/tasks/:id/start", s.handleStartTask)
		api.POST("/tasks/:id/pause", s.handlePauseTask)
		api.POST("/tasks/:id/done", s.handleCompleteTask)
		api.PUT("/tasks/:id/working-time", s.handleSetWorkingTime)
		api.GET("/tasks/:id/time", s.handleTimeReport)

		api.GET("/active", s.handleActiveTask)
		api.POST("/activity", s.handleActivityPing)

		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handleUpdateSettings)
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleActivityPing lets other surfaces (or a companion watcher process)
// feed raw activity signals in.
func (s *Server) handleActivityPing(c *gin.Context) {
	// The middleware already recorded the activity; the endpoint exists so
	// a ping has a well-known, side-effect-free target.
	respondSuccess(c, http.StatusOK, gin.H{"last_active": s.monitor.LastActive()})
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
