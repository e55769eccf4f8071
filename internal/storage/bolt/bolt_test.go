package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mitiempo/mitiempo/internal/storage"
)

func TestIntervalStoreInsertAssignsIDs(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()

	first, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:        storage.ActivityStudy,
		StartMillis: 1000,
		Date:        "2024-03-01",
	})
	if err != nil {
		t.Fatalf("insert interval: %v", err)
	}
	second, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:        storage.ActivitySport,
		StartMillis: 2000,
		Date:        "2024-03-01",
	})
	if err != nil {
		t.Fatalf("insert interval: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, got %d twice", first)
	}
}

func TestIntervalStoreListByDateOrder(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()
	starts := []int64{3000, 1000, 2000}
	for _, start := range starts {
		if _, err := intervals.Insert(context.Background(), storage.Interval{
			Kind:           storage.ActivityWalking,
			StartMillis:    start,
			EndMillis:      start + 500,
			DurationMillis: 500,
			Date:           "2024-03-01",
		}); err != nil {
			t.Fatalf("insert interval: %v", err)
		}
	}
	if _, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:        storage.ActivityWalking,
		StartMillis: 9000,
		Date:        "2024-03-02",
	}); err != nil {
		t.Fatalf("insert interval: %v", err)
	}

	listed, err := intervals.ListByDate(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1].StartMillis < listed[i].StartMillis {
			t.Fatalf("expected descending start order, got %d before %d", listed[i-1].StartMillis, listed[i].StartMillis)
		}
	}
}

func TestIntervalStoreUpdateClosesOpenInterval(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()

	id, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:        storage.ActivityTransport,
		StartMillis: 1000,
		Date:        "2024-03-01",
	})
	if err != nil {
		t.Fatalf("insert interval: %v", err)
	}

	open, err := intervals.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("expected one open interval with id %d, got %+v", id, open)
	}

	if err := intervals.Update(context.Background(), storage.Interval{
		ID:             id,
		Kind:           storage.ActivityTransport,
		StartMillis:    1000,
		EndMillis:      6000,
		DurationMillis: 5000,
		Date:           "2024-03-01",
	}); err != nil {
		t.Fatalf("update interval: %v", err)
	}

	open, err = intervals.ListOpen(context.Background())
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open intervals after close, got %d", len(open))
	}

	sum, err := intervals.SumByActivityAndDate(context.Background(), storage.ActivityTransport, "2024-03-01")
	if err != nil {
		t.Fatalf("sum by activity and date: %v", err)
	}
	if sum != 5000 {
		t.Fatalf("expected sum 5000, got %d", sum)
	}
}

func TestIntervalStoreUpdateMissing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	err := store.Intervals().Update(context.Background(), storage.Interval{ID: 42, Kind: storage.ActivityStudy, Date: "2024-03-01"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIntervalStoreSumExcludesOpen(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()
	if _, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:           storage.ActivityStudy,
		StartMillis:    1000,
		EndMillis:      61000,
		DurationMillis: 60000,
		Date:           "2024-03-01",
	}); err != nil {
		t.Fatalf("insert closed interval: %v", err)
	}
	if _, err := intervals.Insert(context.Background(), storage.Interval{
		Kind:        storage.ActivityStudy,
		StartMillis: 90000,
		Date:        "2024-03-01",
	}); err != nil {
		t.Fatalf("insert open interval: %v", err)
	}

	sum, err := intervals.SumByActivityAndDate(context.Background(), storage.ActivityStudy, "2024-03-01")
	if err != nil {
		t.Fatalf("sum by activity and date: %v", err)
	}
	if sum != 60000 {
		t.Fatalf("expected open interval excluded from sum, got %d", sum)
	}
}

func TestIntervalStoreSumByDateRange(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()
	records := []storage.Interval{
		{Kind: storage.ActivityStudy, StartMillis: 1000, EndMillis: 2000, DurationMillis: 1000, Date: "2024-03-01"},
		{Kind: storage.ActivityStudy, StartMillis: 1000, EndMillis: 3000, DurationMillis: 2000, Date: "2024-03-02"},
		{Kind: storage.ActivitySport, StartMillis: 1000, EndMillis: 4000, DurationMillis: 3000, Date: "2024-03-02"},
		{Kind: storage.ActivitySport, StartMillis: 1000, EndMillis: 5000, DurationMillis: 4000, Date: "2024-03-05"},
	}
	for _, record := range records {
		if _, err := intervals.Insert(context.Background(), record); err != nil {
			t.Fatalf("insert interval: %v", err)
		}
	}

	totals, err := intervals.SumByDateRange(context.Background(), "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("sum by date range: %v", err)
	}
	if totals[storage.ActivityStudy] != 3000 {
		t.Fatalf("expected study total 3000, got %d", totals[storage.ActivityStudy])
	}
	if totals[storage.ActivitySport] != 3000 {
		t.Fatalf("expected sport total 3000, got %d", totals[storage.ActivitySport])
	}
	if totals[storage.ActivityWalking] != 0 {
		t.Fatalf("expected walking total 0, got %d", totals[storage.ActivityWalking])
	}
}

func TestIntervalStoreDeleteBefore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	intervals := store.Intervals()
	dates := []string{"2024-01-01", "2024-02-01", "2024-03-01"}
	for _, date := range dates {
		if _, err := intervals.Insert(context.Background(), storage.Interval{
			Kind:           storage.ActivityWalking,
			StartMillis:    1000,
			EndMillis:      2000,
			DurationMillis: 1000,
			Date:           date,
		}); err != nil {
			t.Fatalf("insert interval: %v", err)
		}
	}

	deleted, err := intervals.DeleteBefore(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted intervals, got %d", deleted)
	}

	remaining, err := intervals.ListByDate(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatalf("list by date: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining interval, got %d", len(remaining))
	}
}

func TestPreferenceStoreDefaults(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	prefs := store.Preferences()

	loggedIn, err := prefs.GetBool(context.Background(), storage.PrefLoggedIn, false)
	if err != nil {
		t.Fatalf("get bool: %v", err)
	}
	if loggedIn {
		t.Fatal("expected default false for unset login flag")
	}

	if err := prefs.SetBool(context.Background(), storage.PrefLoggedIn, true); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if err := prefs.SetString(context.Background(), storage.PrefUserName, "Maria"); err != nil {
		t.Fatalf("set string: %v", err)
	}

	loggedIn, err = prefs.GetBool(context.Background(), storage.PrefLoggedIn, false)
	if err != nil {
		t.Fatalf("get bool: %v", err)
	}
	if !loggedIn {
		t.Fatal("expected login flag true after set")
	}

	name, err := prefs.GetString(context.Background(), storage.PrefUserName, "Usuario")
	if err != nil {
		t.Fatalf("get string: %v", err)
	}
	if name != "Maria" {
		t.Fatalf("expected user name Maria, got %s", name)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mitiempo.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
