package usage

import (
	"context"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/schedule"
	"github.com/rs/zerolog"
)

// DefaultLookback is how far before a query window the aggregator scans for
// resume events, so sessions already in progress at the window start are
// attributed correctly.
const DefaultLookback = 2 * time.Hour

// EventSource supplies raw lifecycle events and a coarse per-package
// aggregate for a time window. Both queries use millisecond epoch bounds.
type EventSource interface {
	QueryEvents(ctx context.Context, start, end int64) ([]Event, error)
	QueryAggregate(ctx context.Context, start, end int64) (map[string]int64, error)
}

// openSession tracks an unmatched resume event during the forward scan.
type openSession struct {
	pkg     string
	started int64
}

// ComputeUsage reconstructs per-package foreground time over the half-open
// window [start, end) from ordered lifecycle events.
//
// The lookback slice seeds sessions already in progress at start; only
// resume events in it are honored. Within the window a resume overwrites the
// tracked session start for its key, and a pause or stop closes the session,
// clipped to the window start. A pause without a tracked session is ignored.
// At the window end only the most recently resumed open session keeps
// accruing, modelling the app in front when the window closed; other open
// entries are stale and dropped. Packages with no positive duration are
// absent from the result.
func ComputeUsage(lookback, events []Event, start, end int64, pkg string) map[string]int64 {
	totals := make(map[string]int64)
	if end <= start {
		return totals
	}

	open := make(map[string]openSession)

	for _, e := range lookback {
		if e.Kind == KindResumed {
			open[e.trackingKey()] = openSession{pkg: e.Package, started: e.Timestamp}
		}
	}

	for _, e := range events {
		switch e.Kind {
		case KindResumed:
			open[e.trackingKey()] = openSession{pkg: e.Package, started: e.Timestamp}

		case KindPaused, KindStopped:
			key := e.trackingKey()
			session, ok := open[key]
			if !ok {
				// Session started before the lookback window or the
				// source dropped the resume event.
				continue
			}
			totals[session.pkg] += e.Timestamp - clampStart(session.started, start)
			delete(open, key)
		}
	}

	// The most recently resumed open session is the foreground app at the
	// window close and is still accruing time.
	var last openSession
	found := false
	for _, session := range open {
		if !found || session.started > last.started {
			last = session
			found = true
		}
	}
	if found {
		totals[last.pkg] += end - clampStart(last.started, start)
	}

	return filterUsage(totals, pkg)
}

func clampStart(started, windowStart int64) int64 {
	if started < windowStart {
		return windowStart
	}
	return started
}

// filterUsage drops non-positive entries and, when pkg is non-empty,
// restricts the result to that package.
func filterUsage(totals map[string]int64, pkg string) map[string]int64 {
	filtered := make(map[string]int64, len(totals))
	for name, ms := range totals {
		if ms <= 0 {
			continue
		}
		if pkg != "" && name != pkg {
			continue
		}
		filtered[name] = ms
	}
	return filtered
}

// Config holds aggregator settings.
type Config struct {
	Lookback time.Duration
}

// Aggregator computes per-package usage over arbitrary windows from an
// event source, falling back to the source's coarse aggregate when the
// event stream yields nothing. It never returns an error to callers;
// degenerate inputs and source failures produce an empty result.
type Aggregator struct {
	source   EventSource
	lookback time.Duration
	clock    schedule.Clock
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator over the given event source.
func NewAggregator(source EventSource, cfg Config, logger zerolog.Logger) *Aggregator {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Aggregator{
		source:   source,
		lookback: lookback,
		clock:    schedule.RealClock{},
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// SetClock sets the clock used for day-relative queries (for testing).
func (a *Aggregator) SetClock(clock schedule.Clock) {
	a.clock = clock
}

// ComputeUsage returns per-package foreground milliseconds for [start, end),
// optionally restricted to a single package.
func (a *Aggregator) ComputeUsage(ctx context.Context, start, end int64, pkg string) map[string]int64 {
	if end <= start {
		return map[string]int64{}
	}

	result, ok := a.computeFromEvents(ctx, start, end, pkg)
	if ok && len(result) > 0 {
		return result
	}

	if !ok {
		a.logger.Warn().
			Int64("start", start).
			Int64("end", end).
			Msg("Event query failed, using aggregate fallback")
	} else {
		a.logger.Debug().
			Int64("start", start).
			Int64("end", end).
			Msg("Event stream empty, using aggregate fallback")
	}
	metrics.UsageAggregateFallbacks.Inc()

	return a.computeFromAggregate(ctx, start, end, pkg)
}

func (a *Aggregator) computeFromEvents(ctx context.Context, start, end int64, pkg string) (map[string]int64, bool) {
	lookbackStart := start - a.lookback.Milliseconds()

	lookback, err := a.source.QueryEvents(ctx, lookbackStart, start)
	if err != nil {
		a.logger.Debug().Err(err).Msg("Lookback query failed")
		// A missing lookback only loses carry-over attribution; the
		// window scan is still usable.
		lookback = nil
	}

	events, err := a.source.QueryEvents(ctx, start, end)
	if err != nil {
		return nil, false
	}

	return ComputeUsage(lookback, events, start, end, pkg), true
}

// computeFromAggregate returns the source's coarse per-package totals. The
// source maintains these with its own definition of foreground time, so the
// attribution is coarser than the event-derived path.
func (a *Aggregator) computeFromAggregate(ctx context.Context, start, end int64, pkg string) map[string]int64 {
	totals, err := a.source.QueryAggregate(ctx, start, end)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Aggregate query failed, returning empty usage")
		return map[string]int64{}
	}
	return filterUsage(totals, pkg)
}

// TodayUsage returns per-package usage from local midnight until now.
func (a *Aggregator) TodayUsage(ctx context.Context) map[string]int64 {
	now := a.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return a.ComputeUsage(ctx, midnight.UnixMilli(), now.UnixMilli(), "")
}

// PackageUsageToday returns today's usage for a single package.
func (a *Aggregator) PackageUsageToday(ctx context.Context, pkg string) int64 {
	now := a.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return a.ComputeUsage(ctx, midnight.UnixMilli(), now.UnixMilli(), pkg)[pkg]
}

// DayUsage is a single day's total for a package.
type DayUsage struct {
	Date       time.Time `json:"date"`
	DurationMs int64     `json:"duration_ms"`
}

// DailyHistory returns one entry per calendar day for the last days days,
// oldest first, for the given package. The current day is clipped to now.
func (a *Aggregator) DailyHistory(ctx context.Context, pkg string, days int) []DayUsage {
	now := a.clock.Now()
	history := make([]DayUsage, 0, days)

	for offset := days - 1; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset)
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
		if dayStart.After(now) {
			continue
		}

		dayEnd := dayStart.AddDate(0, 0, 1)
		end := dayEnd.UnixMilli()
		if nowMs := now.UnixMilli(); nowMs < end {
			end = nowMs
		}

		usage := a.ComputeUsage(ctx, dayStart.UnixMilli(), end, pkg)
		history = append(history, DayUsage{
			Date:       dayStart,
			DurationMs: usage[pkg],
		})
	}

	return history
}
