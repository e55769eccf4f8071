package bolt

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitiempo/mitiempo/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketIntervals   = "intervals"
	bucketIndexDate   = "idx_interval_date"
	bucketIndexOpen   = "idx_interval_open"
	bucketPreferences = "preferences"
)

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{
			[]byte(bucketIntervals),
			[]byte(bucketIndexDate),
			[]byte(bucketIndexOpen),
			[]byte(bucketPreferences),
		}

		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Intervals returns the interval store.
func (s *Store) Intervals() storage.IntervalStore { return &intervalStore{db: s.db} }

// Preferences returns the preference store.
func (s *Store) Preferences() storage.PreferenceStore { return &preferenceStore{db: s.db} }

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

func idKey(id int64) []byte {
	return []byte(fmt.Sprintf("%020d", id))
}

func dateIndexKey(date string, id int64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", date, id))
}
