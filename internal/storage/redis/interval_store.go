package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/redis/go-redis/v9"
)

type intervalStore struct {
	client *redis.Client
}

func (s *intervalStore) Insert(ctx context.Context, interval storage.Interval) (int64, error) {
	id, err := s.client.Incr(ctx, keyIntervalNextID).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate interval id: %w", err)
	}
	interval.ID = id

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, intervalKey(id), intervalFields(interval))
	pipe.SAdd(ctx, dateSetKey(interval.Date), id)
	pipe.SAdd(ctx, keyDates, interval.Date)
	if interval.Open() {
		pipe.SAdd(ctx, keyOpenSet, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("insert interval: %w", err)
	}
	return id, nil
}

func (s *intervalStore) Update(ctx context.Context, interval storage.Interval) error {
	prev, err := s.get(ctx, interval.ID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, intervalKey(interval.ID), intervalFields(interval))
	if prev.Date != interval.Date {
		pipe.SMove(ctx, dateSetKey(prev.Date), dateSetKey(interval.Date), interval.ID)
		pipe.SAdd(ctx, keyDates, interval.Date)
	}
	if prev.Open() && !interval.Open() {
		pipe.SRem(ctx, keyOpenSet, interval.ID)
	}
	if !prev.Open() && interval.Open() {
		pipe.SAdd(ctx, keyOpenSet, interval.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update interval: %w", err)
	}
	return nil
}

func (s *intervalStore) ListByDate(ctx context.Context, date string) ([]storage.Interval, error) {
	intervals, err := s.collect(ctx, dateSetKey(date))
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
	return s.collect(ctx, keyOpenSet)
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

	dates, err := s.client.SMembers(ctx, keyDates).Result()
	if err != nil {
		return nil, fmt.Errorf("list interval dates: %w", err)
	}

	for _, date := range dates {
		// YYYY-MM-DD strings compare chronologically.
		if date < startDate || date > endDate {
			continue
		}
		intervals, err := s.collect(ctx, dateSetKey(date))
		if err != nil {
			return nil, err
		}
		for _, interval := range intervals {
			if !interval.Open() {
				totals[interval.Kind] += interval.DurationMillis
			}
		}
	}
	return totals, nil
}

func (s *intervalStore) DeleteBefore(ctx context.Context, cutoffDate string) (int, error) {
	dates, err := s.client.SMembers(ctx, keyDates).Result()
	if err != nil {
		return 0, fmt.Errorf("list interval dates: %w", err)
	}

	deleted := 0
	for _, date := range dates {
		if date >= cutoffDate {
			continue
		}
		ids, err := s.client.SMembers(ctx, dateSetKey(date)).Result()
		if err != nil {
			return deleted, err
		}

		pipe := s.client.TxPipeline()
		for _, id := range ids {
			pipe.Del(ctx, keyIntervalPrefix+id)
			pipe.SRem(ctx, keyOpenSet, id)
		}
		pipe.Del(ctx, dateSetKey(date))
		pipe.SRem(ctx, keyDates, date)
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, fmt.Errorf("delete intervals for %s: %w", date, err)
		}
		deleted += len(ids)
	}
	return deleted, nil
}

func (s *intervalStore) get(ctx context.Context, id int64) (*storage.Interval, error) {
	data, err := s.client.HGetAll(ctx, intervalKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseInterval(data)
}

func (s *intervalStore) collect(ctx context.Context, setKey string) ([]storage.Interval, error) {
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}

	intervals := make([]storage.Interval, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		interval, err := s.get(ctx, id)
		if err != nil {
			if err == storage.ErrNotFound {
				continue
			}
			return nil, err
		}
		intervals = append(intervals, *interval)
	}
	return intervals, nil
}

func intervalFields(interval storage.Interval) map[string]any {
	return map[string]any{
		"id":              interval.ID,
		"kind":            string(interval.Kind),
		"start_millis":    interval.StartMillis,
		"end_millis":      interval.EndMillis,
		"duration_millis": interval.DurationMillis,
		"date":            interval.Date,
	}
}

func parseInterval(data map[string]string) (*storage.Interval, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	id, err := strconv.ParseInt(data["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	kind, err := storage.ParseActivityKind(data["kind"])
	if err != nil {
		return nil, err
	}

	startMillis, err := strconv.ParseInt(data["start_millis"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start_millis: %w", err)
	}

	endMillis, err := strconv.ParseInt(data["end_millis"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end_millis: %w", err)
	}

	durationMillis, err := strconv.ParseInt(data["duration_millis"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration_millis: %w", err)
	}

	return &storage.Interval{
		ID:             id,
		Kind:           kind,
		StartMillis:    startMillis,
		EndMillis:      endMillis,
		DurationMillis: durationMillis,
		Date:           data["date"],
	}, nil
}
