package storage

import (
	"context"
	"time"

	"github.com/goodtune/screentime/internal/usage"
)

// eventSource adapts a UsageStore to the aggregator's source interface.
// The event log backs the precise path; the daily aggregate records back
// the fallback when the log has no events for a window.
type eventSource struct {
	store UsageStore
}

// NewEventSource returns a usage.EventSource backed by the given store.
func NewEventSource(store UsageStore) usage.EventSource {
	return eventSource{store: store}
}

func (s eventSource) QueryEvents(ctx context.Context, start, end int64) ([]usage.Event, error) {
	return s.store.QueryEvents(ctx, start, end)
}

// QueryAggregate sums the daily aggregate records for every calendar day
// the window touches. Attribution is per-day, so a window cutting through
// a day still counts that whole day's totals.
func (s eventSource) QueryAggregate(ctx context.Context, start, end int64) (map[string]int64, error) {
	totals := make(map[string]int64)

	day := time.UnixMilli(start)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	last := time.UnixMilli(end - 1)

	for !day.After(last) {
		entries, err := s.store.ListDailyUsage(ctx, day.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			totals[entry.Package] += entry.TotalMs
		}
		day = day.AddDate(0, 0, 1)
	}

	return totals, nil
}
