package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

type preferenceStore struct {
	client *redis.Client
}

func (s *preferenceStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := s.client.HGet(ctx, keyPreferences, key).Result()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def, nil
	}
	return parsed, nil
}

func (s *preferenceStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.client.HSet(ctx, keyPreferences, key, strconv.FormatBool(value)).Err()
}

func (s *preferenceStore) GetString(ctx context.Context, key string, def string) (string, error) {
	value, err := s.client.HGet(ctx, keyPreferences, key).Result()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return value, nil
}

func (s *preferenceStore) SetString(ctx context.Context, key string, value string) error {
	return s.client.HSet(ctx, keyPreferences, key, value).Err()
}
