package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mitiempo/mitiempo/internal/metrics"
	"github.com/mitiempo/mitiempo/internal/progress"
	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/tracker"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr  string
	HistoryDays int
}

// Server exposes the tracking engine and aggregator over HTTP.
type Server struct {
	config      Config
	engine      *tracker.Engine
	aggregator  *progress.Aggregator
	preferences storage.PreferenceStore
	clock       tracker.Clock
	server      *http.Server
	router      *gin.Engine
	logger      zerolog.Logger
}

// NewServer creates the API server.
func NewServer(cfg Config, engine *tracker.Engine, aggregator *progress.Aggregator, preferences storage.PreferenceStore, clock tracker.Clock, logger zerolog.Logger) *Server {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 30
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		config:      cfg,
		engine:      engine,
		aggregator:  aggregator,
		preferences: preferences,
		clock:       clock,
		router:      router,
		logger:      logger.With().Str("component", "api").Logger(),
	}

	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(s.logger))
	router.Use(metricsMiddleware())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/tracking", s.handleTracking)
		api.POST("/tracking/:kind/start", s.handleStart)
		api.POST("/tracking/:kind/stop", s.handleStop)
		api.GET("/progress", s.handleProgress)
		api.GET("/history", s.handleHistory)
		api.GET("/records", s.handleRecords)
		api.GET("/profile", s.handleGetProfile)
		api.POST("/profile", s.handleSetProfile)
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("API server started")
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs each request after processing.
func loggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		logger.Info().
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Str("remote_addr", ctx.ClientIP()).
			Int("status", ctx.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("API request")
	}
}

// metricsMiddleware records request counts and latencies per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(path, ctx.Request.Method, strconv.Itoa(ctx.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}
