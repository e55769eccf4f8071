package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitiempo/mitiempo/internal/metrics"
	"github.com/mitiempo/mitiempo/internal/storage"
)

// RetentionScheduler deletes intervals older than the retention window.
// Cleanup runs once a day at the configured reset time.
type RetentionScheduler struct {
	intervals     storage.IntervalStore
	resetTime     time.Time // only hour and minute are used
	retentionDays int
	onCleanup     func(cutoffDate string)
	clock         Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewRetentionScheduler creates a retention scheduler. resetTime is in
// HH:MM format. onCleanup, if non-nil, runs after each successful cleanup
// with the cutoff date, so cached aggregates over deleted dates can be
// dropped.
func NewRetentionScheduler(intervals storage.IntervalStore, resetTime string, retentionDays int, onCleanup func(cutoffDate string), clock Clock, logger zerolog.Logger) (*RetentionScheduler, error) {
	parsedTime, err := time.Parse("15:04", resetTime)
	if err != nil {
		return nil, err
	}

	return &RetentionScheduler{
		intervals:     intervals,
		resetTime:     parsedTime,
		retentionDays: retentionDays,
		onCleanup:     onCleanup,
		clock:         clock,
		logger:        logger.With().Str("component", "retention-scheduler").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins the retention scheduler.
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("reset_time", rs.resetTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Retention scheduler started")
}

// Stop stops the retention scheduler.
func (rs *RetentionScheduler) Stop() {
	close(rs.stopChan)
	rs.logger.Info().Msg("Retention scheduler stopped")
}

// run is the main scheduler loop.
func (rs *RetentionScheduler) run() {
	for {
		nextRun := rs.calculateNextRun()
		waitDuration := nextRun.Sub(rs.clock.Now())

		rs.logger.Info().
			Time("next_cleanup", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next retention cleanup")

		select {
		case <-time.After(waitDuration):
			rs.performCleanup()
		case <-rs.stopChan:
			return
		}
	}
}

// calculateNextRun calculates the next cleanup time.
func (rs *RetentionScheduler) calculateNextRun() time.Time {
	now := rs.clock.Now()

	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.resetTime.Hour(), rs.resetTime.Minute(), 0, 0,
		now.Location(),
	)

	// Already past today's reset time, schedule for tomorrow
	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}

	return todayRun
}

// performCleanup deletes intervals recorded before the retention cutoff.
func (rs *RetentionScheduler) performCleanup() {
	cutoffDate := rs.clock.Now().AddDate(0, 0, -rs.retentionDays).Format(storage.DateFormat)
	rs.logger.Info().Str("cutoff_date", cutoffDate).Msg("Performing retention cleanup")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := rs.intervals.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to clean up old intervals")
		return
	}

	metrics.IntervalsDeleted.Add(float64(deleted))
	if rs.onCleanup != nil {
		rs.onCleanup(cutoffDate)
	}
	rs.logger.Info().
		Int("intervals_deleted", deleted).
		Str("cutoff_date", cutoffDate).
		Msg("Retention cleanup complete")
}
