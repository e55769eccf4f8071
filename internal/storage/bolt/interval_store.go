package bolt

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/mitiempo/mitiempo/internal/storage"
	"go.etcd.io/bbolt"
)

type intervalStore struct {
	db *bbolt.DB
}

func (s *intervalStore) Insert(ctx context.Context, interval storage.Interval) (int64, error) {
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketIntervals))
		if b == nil {
			return fmt.Errorf("intervals bucket missing")
		}

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		id = int64(seq)
		interval.ID = id

		data, err := marshal(interval)
		if err != nil {
			return err
		}
		if err := b.Put(idKey(id), data); err != nil {
			return err
		}

		dateIdx := tx.Bucket([]byte(bucketIndexDate))
		if err := dateIdx.Put(dateIndexKey(interval.Date, id), idKey(id)); err != nil {
			return err
		}

		if interval.Open() {
			openIdx := tx.Bucket([]byte(bucketIndexOpen))
			if err := openIdx.Put(idKey(id), idKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *intervalStore) Update(ctx context.Context, interval storage.Interval) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketIntervals))
		if b == nil {
			return fmt.Errorf("intervals bucket missing")
		}

		key := idKey(interval.ID)
		existing := b.Get(key)
		if existing == nil {
			return storage.ErrNotFound
		}

		var prev storage.Interval
		if err := unmarshal(existing, &prev); err != nil {
			return err
		}

		data, err := marshal(interval)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		if prev.Date != interval.Date {
			dateIdx := tx.Bucket([]byte(bucketIndexDate))
			if err := dateIdx.Delete(dateIndexKey(prev.Date, interval.ID)); err != nil {
				return err
			}
			if err := dateIdx.Put(dateIndexKey(interval.Date, interval.ID), key); err != nil {
				return err
			}
		}

		openIdx := tx.Bucket([]byte(bucketIndexOpen))
		if prev.Open() && !interval.Open() {
			return openIdx.Delete(key)
		}
		if !prev.Open() && interval.Open() {
			return openIdx.Put(key, key)
		}
		return nil
	})
}

func (s *intervalStore) ListByDate(ctx context.Context, date string) ([]storage.Interval, error) {
	intervals := make([]storage.Interval, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIntervals))
		dateIdx := tx.Bucket([]byte(bucketIndexDate))
		if b == nil || dateIdx == nil {
			return nil
		}

		prefix := []byte(date + "/")
		c := dateIdx.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := b.Get(v)
			if value == nil {
				continue
			}
			var interval storage.Interval
			if err := unmarshal(value, &interval); err != nil {
				return err
			}
			intervals = append(intervals, interval)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].StartMillis > intervals[j].StartMillis
	})
	return intervals, nil
}

func (s *intervalStore) ListByActivityAndDate(ctx context.Context, kind storage.ActivityKind, date string) ([]storage.Interval, error) {
	all, err := s.ListByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	intervals := make([]storage.Interval, 0, len(all))
	for _, interval := range all {
		if interval.Kind == kind {
			intervals = append(intervals, interval)
		}
	}
	return intervals, nil
}

func (s *intervalStore) ListOpen(ctx context.Context) ([]storage.Interval, error) {
	intervals := make([]storage.Interval, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIntervals))
		openIdx := tx.Bucket([]byte(bucketIndexOpen))
		if b == nil || openIdx == nil {
			return nil
		}
		return openIdx.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := b.Get(v)
			if value == nil {
				return nil
			}
			var interval storage.Interval
			if err := unmarshal(value, &interval); err != nil {
				return err
			}
			intervals = append(intervals, interval)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return intervals, nil
}

func (s *intervalStore) SumByActivityAndDate(ctx context.Context, kind storage.ActivityKind, date string) (int64, error) {
	intervals, err := s.ListByActivityAndDate(ctx, kind, date)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, interval := range intervals {
		if !interval.Open() {
			total += interval.DurationMillis
		}
	}
	return total, nil
}

func (s *intervalStore) SumByDateRange(ctx context.Context, startDate, endDate string) (map[storage.ActivityKind]int64, error) {
	totals := make(map[storage.ActivityKind]int64, 4)
	for _, kind := range storage.AllActivityKinds() {
		totals[kind] = 0
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketIntervals))
		dateIdx := tx.Bucket([]byte(bucketIndexDate))
		if b == nil || dateIdx == nil {
			return nil
		}

		// YYYY-MM-DD keys sort chronologically, so a cursor range scan works.
		c := dateIdx.Cursor()
		max := []byte(endDate + "/\xff")
		for k, v := c.Seek([]byte(startDate)); k != nil && bytes.Compare(k, max) <= 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := b.Get(v)
			if value == nil {
				continue
			}
			var interval storage.Interval
			if err := unmarshal(value, &interval); err != nil {
				return err
			}
			if !interval.Open() {
				totals[interval.Kind] += interval.DurationMillis
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *intervalStore) DeleteBefore(ctx context.Context, cutoffDate string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketIntervals))
		dateIdx := tx.Bucket([]byte(bucketIndexDate))
		openIdx := tx.Bucket([]byte(bucketIndexOpen))
		if b == nil || dateIdx == nil {
			return nil
		}

		cutoff := []byte(cutoffDate)
		c := dateIdx.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k, cutoff) < 0; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := b.Delete(v); err != nil {
				return err
			}
			if openIdx != nil {
				if err := openIdx.Delete(v); err != nil {
					return err
				}
			}
			if err := c.Delete(); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
