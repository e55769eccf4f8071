package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/storage/bolt"
)

func newTestEngine(t *testing.T) (*Engine, storage.Store, *TestClock) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "mitiempo.bolt"))
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &TestClock{CurrentTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	// Long intervals keep the background loops quiet; tests drive tick and
	// reconcile directly.
	engine := New(store.Intervals(), Config{
		TickInterval:      time.Hour,
		ReconcileInterval: time.Hour,
	}, clock, zerolog.Nop())

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("starting engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, clock
}

func TestStartActivityIdempotent(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StartActivity(ctx, storage.ActivityStudy); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := engine.StartActivity(ctx, storage.ActivityStudy); err != nil {
		t.Fatalf("second start: %v", err)
	}

	open, err := store.Intervals().ListOpen(ctx)
	if err != nil {
		t.Fatalf("listing open intervals: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("expected 1 open interval after double start, got %d", len(open))
	}

	st := engine.Snapshot().Activity(storage.ActivityStudy)
	if !st.Active {
		t.Error("expected study to be active")
	}
}

func TestStopRecordsExactDuration(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StartActivity(ctx, storage.ActivityWalking); err != nil {
		t.Fatalf("starting: %v", err)
	}
	clock.Advance(90 * time.Minute)
	if err := engine.StopActivity(ctx, storage.ActivityWalking); err != nil {
		t.Fatalf("stopping: %v", err)
	}

	st := engine.Snapshot().Activity(storage.ActivityWalking)
	if st.Active {
		t.Error("expected walking to be inactive after stop")
	}
	want := int64(90 * 60 * 1000)
	if st.AccumulatedTodayMillis != want {
		t.Errorf("expected accumulated %d ms, got %d", want, st.AccumulatedTodayMillis)
	}

	date := engine.Snapshot().Date
	sum, err := store.Intervals().SumByActivityAndDate(ctx, storage.ActivityWalking, date)
	if err != nil {
		t.Fatalf("summing: %v", err)
	}
	if sum != want {
		t.Errorf("expected persisted sum %d ms, got %d", want, sum)
	}
}

func TestStopDurationMatchesStoredStart(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StartActivity(ctx, storage.ActivityStudy); err != nil {
		t.Fatalf("starting: %v", err)
	}

	// Rewrite the open interval's start directly in the store, as another
	// process would, without the engine reconciling first.
	open, err := store.Intervals().ListOpen(ctx)
	if err != nil {
		t.Fatalf("listing open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open interval, got %d", len(open))
	}
	iv := open[0]
	externalStart := iv.StartMillis - 10*60*1000
	iv.StartMillis = externalStart
	if err := store.Intervals().Update(ctx, iv); err != nil {
		t.Fatalf("rewriting open interval: %v", err)
	}

	clock.Advance(20 * time.Minute)
	if err := engine.StopActivity(ctx, storage.ActivityStudy); err != nil {
		t.Fatalf("stopping: %v", err)
	}

	records, err := store.Intervals().ListByDate(ctx, engine.Snapshot().Date)
	if err != nil {
		t.Fatalf("listing intervals: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 interval, got %d", len(records))
	}
	closed := records[0]
	if closed.Open() {
		t.Fatal("expected interval closed after stop")
	}
	if closed.StartMillis != externalStart {
		t.Errorf("expected stored start %d, got %d", externalStart, closed.StartMillis)
	}
	if closed.DurationMillis != closed.EndMillis-closed.StartMillis {
		t.Errorf("expected duration %d to equal end-start %d",
			closed.DurationMillis, closed.EndMillis-closed.StartMillis)
	}
}

func TestStopInactiveIsNoOp(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StopActivity(ctx, storage.ActivitySport); err != nil {
		t.Fatalf("stop on inactive returned error: %v", err)
	}

	date := engine.Snapshot().Date
	records, err := store.Intervals().ListByDate(ctx, date)
	if err != nil {
		t.Fatalf("listing intervals: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no intervals written, got %d", len(records))
	}
}

func TestAccumulatedAcrossMultipleSessions(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()

	for _, d := range []time.Duration{30 * time.Minute, 60 * time.Minute} {
		if err := engine.StartActivity(ctx, storage.ActivityTransport); err != nil {
			t.Fatalf("starting: %v", err)
		}
		clock.Advance(d)
		if err := engine.StopActivity(ctx, storage.ActivityTransport); err != nil {
			t.Fatalf("stopping: %v", err)
		}
		clock.Advance(5 * time.Minute)
	}

	st := engine.Snapshot().Activity(storage.ActivityTransport)
	want := int64(90 * 60 * 1000)
	if st.AccumulatedTodayMillis != want {
		t.Errorf("expected accumulated %d ms across sessions, got %d", want, st.AccumulatedTodayMillis)
	}
}

func TestTickUpdatesLiveElapsed(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StartActivity(ctx, storage.ActivitySport); err != nil {
		t.Fatalf("starting: %v", err)
	}
	clock.Advance(42 * time.Second)
	engine.tick()

	st := engine.Snapshot().Activity(storage.ActivitySport)
	want := int64(42 * 1000)
	if st.LiveElapsedMillis != want {
		t.Errorf("expected live elapsed %d ms, got %d", want, st.LiveElapsedMillis)
	}
}

func TestReconcileAdoptsExternalOpen(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	// Interval opened directly in the store, bypassing the engine.
	startMillis := clock.Now().UnixMilli()
	if _, err := store.Intervals().Insert(ctx, storage.Interval{
		Kind:        storage.ActivityStudy,
		StartMillis: startMillis,
		Date:        engine.Snapshot().Date,
	}); err != nil {
		t.Fatalf("inserting interval: %v", err)
	}

	clock.Advance(10 * time.Second)
	if err := engine.reconcile(ctx); err != nil {
		t.Fatalf("reconciling: %v", err)
	}

	st := engine.Snapshot().Activity(storage.ActivityStudy)
	if !st.Active {
		t.Fatal("expected study active after reconciliation")
	}
	if st.StartedAtMillis != startMillis {
		t.Errorf("expected started at %d, got %d", startMillis, st.StartedAtMillis)
	}
}

func TestReconcileClosesStaleActive(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	if err := engine.StartActivity(ctx, storage.ActivityWalking); err != nil {
		t.Fatalf("starting: %v", err)
	}
	clock.Advance(20 * time.Minute)

	// Close the interval directly in the store, as another process would.
	open, err := store.Intervals().ListOpen(ctx)
	if err != nil {
		t.Fatalf("listing open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open interval, got %d", len(open))
	}
	iv := open[0]
	iv.EndMillis = clock.Now().UnixMilli()
	iv.DurationMillis = iv.EndMillis - iv.StartMillis
	if err := store.Intervals().Update(ctx, iv); err != nil {
		t.Fatalf("closing interval: %v", err)
	}

	if err := engine.reconcile(ctx); err != nil {
		t.Fatalf("reconciling: %v", err)
	}

	st := engine.Snapshot().Activity(storage.ActivityWalking)
	if st.Active {
		t.Error("expected walking inactive after external close")
	}
	want := int64(20 * 60 * 1000)
	if st.AccumulatedTodayMillis != want {
		t.Errorf("expected accumulated %d ms after reconciliation, got %d", want, st.AccumulatedTodayMillis)
	}
}

func TestReconcileMostRecentOpenWins(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	date := engine.Snapshot().Date
	older := clock.Now().UnixMilli()
	newer := older + 5*60*1000
	for _, start := range []int64{older, newer} {
		if _, err := store.Intervals().Insert(ctx, storage.Interval{
			Kind:        storage.ActivitySport,
			StartMillis: start,
			Date:        date,
		}); err != nil {
			t.Fatalf("inserting interval: %v", err)
		}
	}

	clock.Advance(10 * time.Minute)
	if err := engine.reconcile(ctx); err != nil {
		t.Fatalf("reconciling: %v", err)
	}

	st := engine.Snapshot().Activity(storage.ActivitySport)
	if !st.Active {
		t.Fatal("expected sport active")
	}
	if st.StartedAtMillis != newer {
		t.Errorf("expected most recent start %d to win, got %d", newer, st.StartedAtMillis)
	}
}

func TestEngineStartLoadsExistingState(t *testing.T) {
	store, err := bolt.Open(filepath.Join(t.TempDir(), "mitiempo.bolt"))
	if err != nil {
		t.Fatalf("opening bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &TestClock{CurrentTime: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	date := storage.DateOf(clock.Now())

	// One finished session and one still open, as left behind by a previous run.
	if _, err := store.Intervals().Insert(ctx, storage.Interval{
		Kind:           storage.ActivityStudy,
		StartMillis:    clock.Now().Add(-2 * time.Hour).UnixMilli(),
		EndMillis:      clock.Now().Add(-1 * time.Hour).UnixMilli(),
		DurationMillis: int64(time.Hour / time.Millisecond),
		Date:           date,
	}); err != nil {
		t.Fatalf("inserting closed interval: %v", err)
	}
	openStart := clock.Now().Add(-10 * time.Minute).UnixMilli()
	if _, err := store.Intervals().Insert(ctx, storage.Interval{
		Kind:        storage.ActivityStudy,
		StartMillis: openStart,
		Date:        date,
	}); err != nil {
		t.Fatalf("inserting open interval: %v", err)
	}

	engine := New(store.Intervals(), Config{
		TickInterval:      time.Hour,
		ReconcileInterval: time.Hour,
	}, clock, zerolog.Nop())
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("starting engine: %v", err)
	}
	t.Cleanup(engine.Close)

	st := engine.Snapshot().Activity(storage.ActivityStudy)
	if !st.Active {
		t.Fatal("expected study resumed as active")
	}
	if st.StartedAtMillis != openStart {
		t.Errorf("expected started at %d, got %d", openStart, st.StartedAtMillis)
	}
	wantAccumulated := int64(time.Hour / time.Millisecond)
	if st.AccumulatedTodayMillis != wantAccumulated {
		t.Errorf("expected accumulated %d ms, got %d", wantAccumulated, st.AccumulatedTodayMillis)
	}
	wantElapsed := int64(10 * 60 * 1000)
	if st.LiveElapsedMillis != wantElapsed {
		t.Errorf("expected live elapsed %d ms, got %d", wantElapsed, st.LiveElapsedMillis)
	}
}
