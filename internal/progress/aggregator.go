package progress

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/tracker"
)

// cacheSize bounds the number of past days kept in memory. History views
// rarely reach beyond a few weeks.
const cacheSize = 64

// DaySummary is the aggregated view of one day.
type DaySummary struct {
	Date         string                         `json:"date"`
	Minutes      map[storage.ActivityKind]int64 `json:"minutes"`
	TotalMinutes int64                          `json:"total_minutes"`
	GoalMinutes  int                            `json:"goal_minutes"`
	Ratio        float64                        `json:"ratio"`
}

// Aggregator computes daily totals and goal progress from persisted
// intervals. Open intervals do not count; only closed time contributes.
// Summaries for past dates are cached since their data no longer changes
// except through retention cleanup.
type Aggregator struct {
	intervals   storage.IntervalStore
	goalMinutes int
	clock       tracker.Clock
	logger      zerolog.Logger
	cache       *lru.Cache[string, DaySummary]
}

// New creates an aggregator with the given daily goal in minutes.
func New(intervals storage.IntervalStore, goalMinutes int, clock tracker.Clock, logger zerolog.Logger) (*Aggregator, error) {
	cache, err := lru.New[string, DaySummary](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating summary cache: %w", err)
	}
	return &Aggregator{
		intervals:   intervals,
		goalMinutes: goalMinutes,
		clock:       clock,
		logger:      logger.With().Str("component", "progress").Logger(),
		cache:       cache,
	}, nil
}

// Summary computes the aggregated view for one date.
func (a *Aggregator) Summary(ctx context.Context, date string) (DaySummary, error) {
	today := storage.DateOf(a.clock.Now())
	cacheable := date < today
	if cacheable {
		if cached, ok := a.cache.Get(date); ok {
			return cached, nil
		}
	}

	totals, err := a.intervals.SumByDateRange(ctx, date, date)
	if err != nil {
		return DaySummary{}, fmt.Errorf("summing intervals for %s: %w", date, err)
	}

	summary := a.buildSummary(date, totals)
	if cacheable {
		a.cache.Add(date, summary)
	}
	return summary, nil
}

// History returns summaries for the last days days ending today, newest
// first. Days with no tracked time appear with zero totals.
func (a *Aggregator) History(ctx context.Context, days int) ([]DaySummary, error) {
	if days < 1 {
		days = 1
	}
	now := a.clock.Now()
	summaries := make([]DaySummary, 0, days)
	for i := 0; i < days; i++ {
		date := storage.DateOf(now.AddDate(0, 0, -i))
		summary, err := a.Summary(ctx, date)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Records returns the raw intervals of one date, newest first.
func (a *Aggregator) Records(ctx context.Context, date string) ([]storage.Interval, error) {
	records, err := a.intervals.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("listing intervals for %s: %w", date, err)
	}
	return records, nil
}

// InvalidateBefore drops cached summaries for all dates strictly before
// cutoffDate, so summaries recomputed after retention cleanup reflect the
// deleted intervals. YYYY-MM-DD strings compare chronologically.
func (a *Aggregator) InvalidateBefore(cutoffDate string) {
	for _, date := range a.cache.Keys() {
		if date < cutoffDate {
			a.cache.Remove(date)
		}
	}
}

func (a *Aggregator) buildSummary(date string, totals map[storage.ActivityKind]int64) DaySummary {
	minutes := make(map[storage.ActivityKind]int64, len(totals))
	var total int64
	for _, kind := range storage.AllActivityKinds() {
		m := totals[kind] / 60000
		minutes[kind] = m
		total += m
	}

	ratio := 0.0
	if a.goalMinutes > 0 {
		ratio = float64(total) / float64(a.goalMinutes)
		if ratio > 1 {
			ratio = 1
		}
	}

	return DaySummary{
		Date:         date,
		Minutes:      minutes,
		TotalMinutes: total,
		GoalMinutes:  a.goalMinutes,
		Ratio:        ratio,
	}
}
