package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mitiempo/mitiempo/internal/config"
	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyIntervalPrefix = "mitiempo:interval:"
	keyIntervalNextID = "mitiempo:interval:next_id"
	keyDateSetPrefix  = "mitiempo:intervals:date:"
	keyDates          = "mitiempo:intervals:dates"
	keyOpenSet        = "mitiempo:intervals:open"
	keyPreferences    = "mitiempo:preferences"
)

// Store implements the storage.Store interface using Redis.
type Store struct {
	client        *redis.Client
	intervalStore *intervalStore
	prefStore     *preferenceStore
}

// Open creates a new Redis-backed storage instance.
func Open(cfg config.RedisConfig) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:        client,
		intervalStore: &intervalStore{client: client},
		prefStore:     &preferenceStore{client: client},
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Intervals returns the IntervalStore implementation.
func (s *Store) Intervals() storage.IntervalStore {
	return s.intervalStore
}

// Preferences returns the PreferenceStore implementation.
func (s *Store) Preferences() storage.PreferenceStore {
	return s.prefStore
}

func intervalKey(id int64) string {
	return fmt.Sprintf("%s%d", keyIntervalPrefix, id)
}

func dateSetKey(date string) string {
	return keyDateSetPrefix + date
}
