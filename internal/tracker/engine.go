package tracker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitiempo/mitiempo/internal/metrics"
	"github.com/mitiempo/mitiempo/internal/storage"
)

// ActivityState is the live view of one activity kind for the current day.
type ActivityState struct {
	Kind                   storage.ActivityKind `json:"kind"`
	Active                 bool                 `json:"active"`
	StartedAtMillis        int64                `json:"started_at_millis,omitempty"`
	LiveElapsedMillis      int64                `json:"live_elapsed_millis"`
	AccumulatedTodayMillis int64                `json:"accumulated_today_millis"`
}

// Snapshot is an immutable view of all activity states. Readers get a
// consistent snapshot without taking any lock; writers replace the whole
// snapshot under the engine mutex.
type Snapshot struct {
	Date       string                                 `json:"date"`
	Activities map[storage.ActivityKind]ActivityState `json:"activities"`
}

// Activity returns the state for one kind. The zero value is returned for
// kinds the snapshot does not know, which does not happen in practice.
func (s *Snapshot) Activity(kind storage.ActivityKind) ActivityState {
	return s.Activities[kind]
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Date:       s.Date,
		Activities: make(map[storage.ActivityKind]ActivityState, len(s.Activities)),
	}
	for k, v := range s.Activities {
		next.Activities[k] = v
	}
	return next
}

// Config holds engine timing parameters.
type Config struct {
	TickInterval      time.Duration
	ReconcileInterval time.Duration
}

// Engine tracks live activity state for the current day. The persisted
// interval store is the source of truth; the engine keeps an in-memory
// mirror that it updates optimistically on start/stop and converges via a
// periodic reconciliation pass over the store's open intervals.
type Engine struct {
	intervals storage.IntervalStore
	clock     Clock
	logger    zerolog.Logger
	cfg       Config

	mu       sync.Mutex // serializes all snapshot writers
	snapshot atomic.Pointer[Snapshot]

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a tracking engine. Call Start before use.
func New(intervals storage.IntervalStore, cfg Config, clock Clock, logger zerolog.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 2 * time.Second
	}
	return &Engine{
		intervals: intervals,
		clock:     clock,
		logger:    logger.With().Str("component", "tracker").Logger(),
		cfg:       cfg,
	}
}

// Start loads today's state from the store and launches the tick and
// reconciliation loops. The engine tracks the day that was current at
// start time; a restart picks up the new day.
func (e *Engine) Start(ctx context.Context) error {
	now := e.clock.Now()
	date := storage.DateOf(now)

	snap := &Snapshot{
		Date:       date,
		Activities: make(map[storage.ActivityKind]ActivityState, 4),
	}
	for _, kind := range storage.AllActivityKinds() {
		sum, err := e.intervals.SumByActivityAndDate(ctx, kind, date)
		if err != nil {
			return fmt.Errorf("loading accumulated time for %s: %w", kind, err)
		}
		snap.Activities[kind] = ActivityState{Kind: kind, AccumulatedTodayMillis: sum}
	}

	open, err := e.intervals.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("loading open intervals: %w", err)
	}
	for kind, iv := range latestOpenByKind(open, e.logger) {
		st := snap.Activities[kind]
		st.Active = true
		st.StartedAtMillis = iv.StartMillis
		st.LiveElapsedMillis = now.UnixMilli() - iv.StartMillis
		if st.LiveElapsedMillis < 0 {
			st.LiveElapsedMillis = 0
		}
		snap.Activities[kind] = st
	}

	e.snapshot.Store(snap)
	e.logger.Info().
		Str("date", date).
		Int("open_intervals", len(open)).
		Msg("Tracking engine started")

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(loopCtx)
	return nil
}

// Close stops the background loops and waits for them to exit.
func (e *Engine) Close() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.logger.Info().Msg("Tracking engine stopped")
}

// Snapshot returns the current live state. Safe for concurrent use.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// StartActivity opens a new interval for the given kind. Starting an
// already-active kind is a no-op.
func (e *Engine) StartActivity(ctx context.Context, kind storage.ActivityKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snapshot.Load()
	st := snap.Activity(kind)
	if st.Active {
		e.logger.Debug().Str("kind", string(kind)).Msg("Start ignored, already active")
		return nil
	}

	now := e.clock.Now()
	id, err := e.intervals.Insert(ctx, storage.Interval{
		Kind:        kind,
		StartMillis: now.UnixMilli(),
		Date:        snap.Date,
	})
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert").Inc()
		return fmt.Errorf("starting %s: %w", kind, err)
	}

	next := snap.clone()
	st.Active = true
	st.StartedAtMillis = now.UnixMilli()
	st.LiveElapsedMillis = 0
	next.Activities[kind] = st
	e.snapshot.Store(next)

	metrics.ActivityStartsTotal.WithLabelValues(string(kind)).Inc()
	metrics.OpenActivities.Set(float64(countActive(next)))
	e.logger.Info().Str("kind", string(kind)).Int64("interval_id", id).Msg("Activity started")
	return nil
}

// StopActivity closes the open interval for the given kind. Stopping an
// inactive kind is a no-op. On store failure the live state is left
// unchanged; the reconciliation loop converges it later.
func (e *Engine) StopActivity(ctx context.Context, kind storage.ActivityKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snapshot.Load()
	st := snap.Activity(kind)
	if !st.Active {
		e.logger.Debug().Str("kind", string(kind)).Msg("Stop ignored, not active")
		return nil
	}

	open, err := e.intervals.ListOpen(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("list_open").Inc()
		return fmt.Errorf("stopping %s: %w", kind, err)
	}
	iv, ok := latestOpenByKind(open, e.logger)[kind]
	if !ok {
		// Live state says active but the store has no open interval.
		// Leave it to reconciliation rather than guessing.
		return fmt.Errorf("stopping %s: open interval: %w", kind, storage.ErrNotFound)
	}

	// Duration comes from the stored record's own start, so the closed
	// interval always satisfies duration == end - start even if the open
	// interval was replaced since the last reconcile pass.
	now := e.clock.Now()
	iv.EndMillis = now.UnixMilli()
	iv.DurationMillis = iv.EndMillis - iv.StartMillis
	if iv.DurationMillis < 0 {
		iv.DurationMillis = 0
	}
	if err := e.intervals.Update(ctx, iv); err != nil {
		metrics.StoreErrors.WithLabelValues("update").Inc()
		return fmt.Errorf("stopping %s: %w", kind, err)
	}

	// Re-query the store rather than adding locally, so the total reflects
	// whatever actually got persisted.
	accumulated, err := e.intervals.SumByActivityAndDate(ctx, kind, snap.Date)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("sum").Inc()
		e.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Re-query after stop failed, using local total")
		accumulated = st.AccumulatedTodayMillis + iv.DurationMillis
	}

	next := snap.clone()
	st.Active = false
	st.StartedAtMillis = 0
	st.LiveElapsedMillis = 0
	st.AccumulatedTodayMillis = accumulated
	next.Activities[kind] = st
	e.snapshot.Store(next)

	metrics.ActivityStopsTotal.WithLabelValues(string(kind)).Inc()
	metrics.TrackedMinutes.WithLabelValues(string(kind)).Add(float64(iv.DurationMillis) / 60000.0)
	metrics.OpenActivities.Set(float64(countActive(next)))
	e.logger.Info().
		Str("kind", string(kind)).
		Int64("interval_id", iv.ID).
		Int64("duration_millis", iv.DurationMillis).
		Msg("Activity stopped")
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	tick := time.NewTicker(e.cfg.TickInterval)
	defer tick.Stop()
	reconcile := time.NewTicker(e.cfg.ReconcileInterval)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			e.tick()
		case <-reconcile.C:
			if err := e.reconcile(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Reconciliation pass failed")
			}
		}
	}
}

// tick refreshes the live elapsed counters of active kinds.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.snapshot.Load()
	nowMillis := e.clock.Now().UnixMilli()

	changed := false
	next := snap.clone()
	for _, kind := range storage.AllActivityKinds() {
		st := next.Activities[kind]
		if !st.Active {
			continue
		}
		elapsed := nowMillis - st.StartedAtMillis
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed != st.LiveElapsedMillis {
			st.LiveElapsedMillis = elapsed
			next.Activities[kind] = st
			changed = true
		}
	}
	if changed {
		e.snapshot.Store(next)
	}
}

// reconcile converges the live state with the store. The store's open
// intervals are authoritative for which kinds are active and since when.
func (e *Engine) reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	open, err := e.intervals.ListOpen(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("list_open").Inc()
		return fmt.Errorf("listing open intervals: %w", err)
	}
	byKind := latestOpenByKind(open, e.logger)

	snap := e.snapshot.Load()
	nowMillis := e.clock.Now().UnixMilli()
	next := snap.clone()
	changed := false

	for _, kind := range storage.AllActivityKinds() {
		st := next.Activities[kind]
		iv, isOpen := byKind[kind]
		switch {
		case isOpen && (!st.Active || st.StartedAtMillis != iv.StartMillis):
			st.Active = true
			st.StartedAtMillis = iv.StartMillis
			st.LiveElapsedMillis = nowMillis - iv.StartMillis
			if st.LiveElapsedMillis < 0 {
				st.LiveElapsedMillis = 0
			}
			next.Activities[kind] = st
			changed = true
			e.logger.Warn().Str("kind", string(kind)).Msg("Reconciled to active from store")
		case !isOpen && st.Active:
			st.Active = false
			st.StartedAtMillis = 0
			st.LiveElapsedMillis = 0
			if sum, err := e.intervals.SumByActivityAndDate(ctx, kind, snap.Date); err == nil {
				st.AccumulatedTodayMillis = sum
			} else {
				metrics.StoreErrors.WithLabelValues("sum").Inc()
			}
			next.Activities[kind] = st
			changed = true
			e.logger.Warn().Str("kind", string(kind)).Msg("Reconciled to inactive from store")
		}
	}

	if changed {
		e.snapshot.Store(next)
		metrics.ReconcileCorrections.Inc()
	}
	metrics.ReconcilePasses.Inc()
	metrics.OpenActivities.Set(float64(len(byKind)))
	return nil
}

// latestOpenByKind picks the most recently started open interval per kind.
// Multiple open intervals for one kind violate the single-open invariant;
// the newest wins and the situation is logged.
func latestOpenByKind(open []storage.Interval, logger zerolog.Logger) map[storage.ActivityKind]storage.Interval {
	byKind := make(map[storage.ActivityKind]storage.Interval, len(open))
	counts := make(map[storage.ActivityKind]int, len(open))
	for _, iv := range open {
		counts[iv.Kind]++
		if prev, ok := byKind[iv.Kind]; !ok || iv.StartMillis > prev.StartMillis {
			byKind[iv.Kind] = iv
		}
	}
	for kind, n := range counts {
		if n > 1 {
			logger.Warn().
				Str("kind", string(kind)).
				Int("open_count", n).
				Msg("Multiple open intervals for one activity, using most recent")
		}
	}
	return byKind
}

func countActive(s *Snapshot) int {
	n := 0
	for _, st := range s.Activities {
		if st.Active {
			n++
		}
	}
	return n
}
