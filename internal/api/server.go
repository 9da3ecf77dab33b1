// Package api exposes the interpretation engine over HTTP: single and
// batch analysis, asynchronous batch jobs with WebSocket progress
// streams, knowledge base info, health, and a metrics snapshot.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pgx-risk-engine/internal/database"
	"github.com/pgx-risk-engine/internal/domain"
	"github.com/pgx-risk-engine/internal/metrics"
	"github.com/pgx-risk-engine/internal/middleware"
	"github.com/pgx-risk-engine/internal/service"
	"github.com/pgx-risk-engine/internal/store"
	"github.com/pgx-risk-engine/pkg/cache"
)

// Dependencies bundles the wired components the server serves.
// RunStore and DB may be nil when run auditing is disabled; Cache is
// never nil (a disabled cache is the noop backend).
type Dependencies struct {
	Config    *domain.Config
	Engine    *service.Engine
	Batch     *service.BatchRunner
	KB        domain.KnowledgeBase
	RunStore  store.RunStore
	DB        *database.DB
	Cache     cache.Cache
	Collector *metrics.Collector
	Logger    *logrus.Logger
}

// Server is the HTTP front of the interpretation engine.
type Server struct {
	cfg    *domain.Config
	deps   Dependencies
	parser *service.InputParser
	jobs   *JobManager
	router *gin.Engine
	server *http.Server
	logger *logrus.Logger
}

// NewServer wires the gin router, middleware stack, and routes.
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	cfg := deps.Config

	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg.RateLimit, logger))

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		parser: service.NewInputParser(logger),
		jobs:   NewJobManager(deps.Batch, deps.RunStore, deps.Collector, logger),
		router: router,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine, used by httptest in the package tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server until ctx is cancelled, then drains in-flight
// requests with a 30 second shutdown window.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("HTTP server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/kb/info", s.handleKBInfo)
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/analyze/batch", s.handleAnalyzeBatch)
		v1.POST("/batch/jobs", s.handleSubmitJob)
		v1.GET("/batch/jobs/:id", s.handleJobStatus)
		v1.GET("/batch/jobs/:id/events", s.handleJobEvents)
		v1.GET("/stats", s.handleStats)
	}
}
