package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

func TestRoutineStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	start := schedule.TimeOfDay{Hour: 9}
	end := schedule.TimeOfDay{Hour: 17}
	routine := storage.Routine{
		ID:      "routine-a",
		Name:    "Work",
		Enabled: true,
		Schedule: schedule.Schedule{
			Type:  schedule.TypeWeekly,
			Start: &start,
			End:   &end,
			Days:  schedule.Days(time.Monday, time.Friday),
		},
		Limits: []storage.AppLimit{
			{Package: "app.social", LimitMinutes: 30},
			{Package: "app.video", LimitMinutes: 15},
			{Package: "app.social", LimitMinutes: 10}, // last write wins
		},
	}

	if err := store.Routines().Upsert(context.Background(), routine); err != nil {
		t.Fatalf("upsert routine: %v", err)
	}

	got, err := store.Routines().Get(context.Background(), "routine-a")
	if err != nil {
		t.Fatalf("get routine: %v", err)
	}
	if got.Name != "Work" || !got.Enabled {
		t.Errorf("unexpected routine: %+v", got)
	}
	if got.Schedule.Type != schedule.TypeWeekly || !got.Schedule.Days.Has(time.Monday) {
		t.Errorf("schedule not preserved: %+v", got.Schedule)
	}
	if len(got.Limits) != 2 {
		t.Fatalf("expected deduped limits, got %d entries", len(got.Limits))
	}
	if got.Limits[0].Package != "app.social" || got.Limits[0].LimitMinutes != 10 {
		t.Errorf("duplicate package should keep last value, got %+v", got.Limits[0])
	}
}

func TestRoutineStoreListEnabled(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	routines := []storage.Routine{
		{ID: "routine-a", Name: "A", Enabled: true},
		{ID: "routine-b", Name: "B", Enabled: false},
		{ID: "routine-c", Name: "C", Enabled: true},
	}

	for _, routine := range routines {
		if err := store.Routines().Upsert(context.Background(), routine); err != nil {
			t.Fatalf("upsert routine: %v", err)
		}
	}

	enabled, err := store.Routines().ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("list enabled routines: %v", err)
	}
	if len(enabled) != 2 {
		t.Fatalf("expected 2 enabled routines, got %d", len(enabled))
	}
}

func TestRoutineStoreDeleteMissing(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	err := store.Routines().Delete(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLimitStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	limits := store.Limits()

	if err := limits.SetLimit(context.Background(), "app.video", 45); err != nil {
		t.Fatalf("set limit: %v", err)
	}

	minutes, err := limits.GetLimit(context.Background(), "app.video")
	if err != nil {
		t.Fatalf("get limit: %v", err)
	}
	if minutes != 45 {
		t.Errorf("limit = %d, want 45", minutes)
	}

	all, err := limits.ListLimits(context.Background())
	if err != nil {
		t.Fatalf("list limits: %v", err)
	}
	if len(all) != 1 || all["app.video"] != 45 {
		t.Errorf("unexpected limits: %v", all)
	}

	if err := limits.RemoveLimit(context.Background(), "app.video"); err != nil {
		t.Fatalf("remove limit: %v", err)
	}
	if _, err := limits.GetLimit(context.Background(), "app.video"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestLimitStoreWhitelist(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	limits := store.Limits()

	if err := limits.AddToWhitelist(context.Background(), "app.phone"); err != nil {
		t.Fatalf("add to whitelist: %v", err)
	}

	ok, err := limits.IsWhitelisted(context.Background(), "app.phone")
	if err != nil {
		t.Fatalf("is whitelisted: %v", err)
	}
	if !ok {
		t.Error("expected app.phone whitelisted")
	}

	packages, err := limits.ListWhitelist(context.Background())
	if err != nil {
		t.Fatalf("list whitelist: %v", err)
	}
	if len(packages) != 1 || packages[0] != "app.phone" {
		t.Errorf("unexpected whitelist: %v", packages)
	}

	if err := limits.RemoveFromWhitelist(context.Background(), "app.phone"); err != nil {
		t.Fatalf("remove from whitelist: %v", err)
	}
	ok, _ = limits.IsWhitelisted(context.Background(), "app.phone")
	if ok {
		t.Error("expected app.phone no longer whitelisted")
	}
}

func TestUsageStoreEvents(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	usageStore := store.Usage()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

	events := []usage.Event{
		{Package: "app.mail", Kind: usage.KindResumed, Timestamp: base},
		{Package: "app.mail", Kind: usage.KindPaused, Timestamp: base + 60_000},
		{Package: "app.maps", Kind: usage.KindResumed, Timestamp: base + 120_000},
	}

	for _, event := range events {
		if err := usageStore.AddEvent(context.Background(), event); err != nil {
			t.Fatalf("add event: %v", err)
		}
	}

	got, err := usageStore.QueryEvents(context.Background(), base, base+90_000)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(got))
	}
	if got[0].Timestamp > got[1].Timestamp {
		t.Error("events not ordered by timestamp")
	}

	deleted, err := usageStore.DeleteEventsBefore(context.Background(), base+90_000)
	if err != nil {
		t.Fatalf("delete events before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted events, got %d", deleted)
	}

	remaining, err := usageStore.QueryEvents(context.Background(), base, base+300_000)
	if err != nil {
		t.Fatalf("query remaining events: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Package != "app.maps" {
		t.Errorf("unexpected remaining events: %v", remaining)
	}
}

func TestUsageStoreDailyUsage(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	usageStore := store.Usage()
	date := "2024-01-02"

	if err := usageStore.IncrementDailyUsage(context.Background(), date, "app.mail", 120_000); err != nil {
		t.Fatalf("increment daily usage: %v", err)
	}
	if err := usageStore.IncrementDailyUsage(context.Background(), date, "app.mail", 30_000); err != nil {
		t.Fatalf("increment daily usage: %v", err)
	}

	entry, err := usageStore.GetDailyUsage(context.Background(), date, "app.mail")
	if err != nil {
		t.Fatalf("get daily usage: %v", err)
	}
	if entry.TotalMs != 150_000 {
		t.Fatalf("expected total 150000, got %d", entry.TotalMs)
	}

	entries, err := usageStore.ListDailyUsage(context.Background(), date)
	if err != nil {
		t.Fatalf("list daily usage: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	deleted, err := usageStore.DeleteDailyUsageBefore(context.Background(), "2024-01-03")
	if err != nil {
		t.Fatalf("delete daily usage before: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted entry, got %d", deleted)
	}
}

func TestStateStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	state := store.State()

	if _, err := state.ActiveRoutine(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no active routine, got %v", err)
	}

	if err := state.SetActiveRoutine(context.Background(), "routine-a"); err != nil {
		t.Fatalf("set active routine: %v", err)
	}

	id, err := state.ActiveRoutine(context.Background())
	if err != nil {
		t.Fatalf("active routine: %v", err)
	}
	if id != "routine-a" {
		t.Errorf("active routine = %q, want routine-a", id)
	}

	if err := state.ClearActiveRoutine(context.Background()); err != nil {
		t.Fatalf("clear active routine: %v", err)
	}
	if _, err := state.ActiveRoutine(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}

	if _, err := state.LastSummaryDate(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no summary recorded, got %v", err)
	}
	if err := state.SetLastSummaryDate(context.Background(), "2024-01-01"); err != nil {
		t.Fatalf("set last summary date: %v", err)
	}
	date, err := state.LastSummaryDate(context.Background())
	if err != nil {
		t.Fatalf("last summary date: %v", err)
	}
	if date != "2024-01-01" {
		t.Errorf("last summary date = %q, want 2024-01-01", date)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "screentime.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
