// Package httpserver exposes the JSON API consumed by the offline-first PWA
// client: task CRUD, the sync reconciliation surface, and auth.
package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edrozo/tasksync/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	engine  *gin.Engine
	auth    service.AuthService
	tasks   service.TaskService
	sync    service.SyncService
	signKey []byte
	log     *zap.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(auth service.AuthService, tasks service.TaskService, sync service.SyncService, signKey []byte, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine:  engine,
		auth:    auth,
		tasks:   tasks,
		sync:    sync,
		signKey: signKey,
		log:     log,
	}

	engine.Use(s.recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := s.engine.Group("/auth")
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", s.handleLogin)
		auth.GET("/me", s.requireAuth(), s.handleMe)
	}

	tasks := s.engine.Group("/tasks", s.requireAuth())
	{
		tasks.GET("", s.handleListTasks)
		tasks.GET("/stats", s.handleTaskStats)
		tasks.GET("/:id", s.handleGetTask)
		tasks.POST("", s.handleCreateTask)
		tasks.POST("/sync", s.handleBatchCreate)
		tasks.PUT("/:id", s.handleUpdateTask)
		tasks.PATCH("/:id/toggle", s.handleToggleTask)
		tasks.DELETE("/:id", s.handleDeleteTask)
	}

	sync := s.engine.Group("/sync", s.requireAuth())
	{
		sync.POST("/pending", s.handleSubmitBatch)
		sync.GET("/pending", s.handleListOps)
		sync.POST("/retry", s.handleRetry)
		sync.GET("/stats", s.handleSyncStats)
		sync.DELETE("/clean", s.handleClean)
		sync.POST("/auto", s.handleAutoSync)
	}
}

// handleHealth provides a basic liveness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
