package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Intervals() IntervalStore
	Preferences() PreferenceStore
}

// IntervalStore manages persisted activity intervals.
//
// Implementations must apply Update as a single atomic record replace so a
// concurrent reader never observes a half-written interval. The store does
// not enforce the one-open-interval-per-activity invariant; that is owned by
// the tracking engine.
type IntervalStore interface {
	// Insert stores a new interval and returns the assigned id.
	Insert(ctx context.Context, interval Interval) (int64, error)
	// Update replaces the record matching interval.ID. Returns ErrNotFound
	// if no such record exists.
	Update(ctx context.Context, interval Interval) error
	// ListByDate returns all intervals on a calendar date, newest first.
	ListByDate(ctx context.Context, date string) ([]Interval, error)
	// ListByActivityAndDate returns intervals for one activity on a date.
	ListByActivityAndDate(ctx context.Context, kind ActivityKind, date string) ([]Interval, error)
	// ListOpen returns intervals with no end time, across all activities.
	ListOpen(ctx context.Context) ([]Interval, error)
	// SumByActivityAndDate returns the summed duration in milliseconds of
	// closed intervals for one activity on a date. Zero if none.
	SumByActivityAndDate(ctx context.Context, kind ActivityKind, date string) (int64, error)
	// SumByDateRange returns summed closed durations per activity for all
	// dates in [startDate, endDate], inclusive.
	SumByDateRange(ctx context.Context, startDate, endDate string) (map[ActivityKind]int64, error)
	// DeleteBefore removes intervals dated strictly before cutoffDate and
	// returns the number deleted.
	DeleteBefore(ctx context.Context, cutoffDate string) (int, error)
}

// PreferenceStore is a small key-value store for user preferences such as
// the login flag and display name. Persisted independently of intervals.
type PreferenceStore interface {
	GetBool(ctx context.Context, key string, def bool) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error
	GetString(ctx context.Context, key string, def string) (string, error)
	SetString(ctx context.Context, key string, value string) error
}

// Well-known preference keys.
const (
	PrefLoggedIn = "is_logged_in"
	PrefUserName = "user_name"
)
