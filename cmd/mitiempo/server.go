package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mitiempo/mitiempo/internal/api"
	"github.com/mitiempo/mitiempo/internal/config"
	"github.com/mitiempo/mitiempo/internal/metrics"
	"github.com/mitiempo/mitiempo/internal/progress"
	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/storage/bolt"
	"github.com/mitiempo/mitiempo/internal/storage/redis"
	"github.com/mitiempo/mitiempo/internal/tracker"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the MiTiempo server",
	Long:  `Start the MiTiempo server with the tracking engine, HTTP API, and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting MiTiempo")

	// Initialize storage
	store, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize tracking engine
	clock := tracker.RealClock{}
	engine := tracker.New(store.Intervals(), tracker.Config{
		TickInterval:      parseDuration(cfg.Tracking.TickInterval, time.Second),
		ReconcileInterval: parseDuration(cfg.Tracking.ReconcileInterval, 2*time.Second),
	}, clock, logger)

	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start tracking engine: %w", err)
	}

	// Initialize progress aggregator
	aggregator, err := progress.New(store.Intervals(), cfg.Tracking.DailyGoalMinutes, clock, logger)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}

	// Start retention scheduler
	retention, err := tracker.NewRetentionScheduler(
		store.Intervals(),
		cfg.Tracking.DailyResetTime,
		cfg.Tracking.RetentionDays,
		aggregator.InvalidateBefore,
		clock,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create retention scheduler: %w", err)
	}
	retention.Start()

	// Start API server
	apiServer := api.NewServer(api.Config{
		ListenAddr:  net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.APIPort)),
		HistoryDays: cfg.Tracking.HistoryDays,
	}, engine, aggregator, store.Preferences(), clock, logger)
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Start metrics server
	metricsServer := metrics.NewServer(
		net.JoinHostPort(cfg.Server.BindAddress, strconv.Itoa(cfg.Server.MetricsPort)),
		logger,
	)
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().
		Int("api_port", cfg.Server.APIPort).
		Int("metrics_port", cfg.Server.MetricsPort).
		Int("daily_goal_minutes", cfg.Tracking.DailyGoalMinutes).
		Msg("MiTiempo started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	// Stop servers
	retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	engine.Close()

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("MiTiempo stopped")

	return nil
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "", "bolt":
		return bolt.Open(cfg.Storage.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be 'bolt' or 'redis')", cfg.Storage.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
