package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracking TrackingConfig `mapstructure:"tracking"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

// RedisConfig defines the optional Redis storage backend
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines tracking engine settings
type TrackingConfig struct {
	TickInterval      string `mapstructure:"tick_interval"`
	ReconcileInterval string `mapstructure:"reconcile_interval"`
	DailyGoalMinutes  int    `mapstructure:"daily_goal_minutes"`
	DailyResetTime    string `mapstructure:"daily_reset_time"`
	RetentionDays     int    `mapstructure:"retention_days"`
	HistoryDays       int    `mapstructure:"history_days"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MITIEMPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and environment variables apply.
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8787)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "127.0.0.1")

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "data/mitiempo.bolt")

	// Redis defaults
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.tick_interval", "1s")
	v.SetDefault("tracking.reconcile_interval", "2s")
	v.SetDefault("tracking.daily_goal_minutes", 480)
	v.SetDefault("tracking.daily_reset_time", "00:00")
	v.SetDefault("tracking.retention_days", 90)
	v.SetDefault("tracking.history_days", 30)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for bolt storage")
		}
		storageDir := filepath.Dir(cfg.Storage.Path)
		if storageDir != "." {
			if err := os.MkdirAll(storageDir, 0755); err != nil {
				return fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
	case "redis":
		if cfg.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}

	if _, err := time.ParseDuration(cfg.Tracking.TickInterval); err != nil {
		return fmt.Errorf("invalid tick_interval: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Tracking.ReconcileInterval); err != nil {
		return fmt.Errorf("invalid reconcile_interval: %w", err)
	}
	if _, err := time.Parse("15:04", cfg.Tracking.DailyResetTime); err != nil {
		return fmt.Errorf("invalid daily_reset_time: %w", err)
	}
	if cfg.Tracking.DailyGoalMinutes <= 0 {
		return fmt.Errorf("daily_goal_minutes must be positive")
	}
	if cfg.Tracking.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive")
	}
	if cfg.Tracking.HistoryDays <= 0 {
		return fmt.Errorf("history_days must be positive")
	}

	return nil
}
