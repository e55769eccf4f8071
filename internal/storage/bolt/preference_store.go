package bolt

import (
	"context"
	"strconv"

	"go.etcd.io/bbolt"
)

type preferenceStore struct {
	db *bbolt.DB
}

func (s *preferenceStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := s.get(ctx, key)
	if err != nil || value == nil {
		return def, err
	}
	parsed, err := strconv.ParseBool(string(value))
	if err != nil {
		return def, nil
	}
	return parsed, nil
}

func (s *preferenceStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.put(ctx, key, []byte(strconv.FormatBool(value)))
}

func (s *preferenceStore) GetString(ctx context.Context, key string, def string) (string, error) {
	value, err := s.get(ctx, key)
	if err != nil || value == nil {
		return def, err
	}
	return string(value), nil
}

func (s *preferenceStore) SetString(ctx context.Context, key string, value string) error {
	return s.put(ctx, key, []byte(value))
}

func (s *preferenceStore) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketPreferences))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

func (s *preferenceStore) put(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketPreferences))
		return b.Put([]byte(key), value)
	})
}
