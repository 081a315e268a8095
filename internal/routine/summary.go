package routine

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
)

// SummaryScheduler rolls the finished day's usage into daily aggregate
// records once per day and prunes data past the retention window. The
// aggregates survive event-log pruning, so history queries stay cheap long
// after the raw events are gone.
type SummaryScheduler struct {
	store         storage.Store
	aggregator    *usage.Aggregator
	summaryTime   time.Time // Time of day to run (only hour and minute are used)
	retentionDays int
	clock         schedule.Clock
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewSummaryScheduler creates a daily summary scheduler. summaryTime is in
// HH:MM format.
func NewSummaryScheduler(store storage.Store, aggregator *usage.Aggregator, summaryTime string, retentionDays int, logger zerolog.Logger) (*SummaryScheduler, error) {
	parsedTime, err := time.Parse("15:04", summaryTime)
	if err != nil {
		return nil, err
	}

	return &SummaryScheduler{
		store:         store,
		aggregator:    aggregator,
		summaryTime:   parsedTime,
		retentionDays: retentionDays,
		clock:         schedule.RealClock{},
		logger:        logger.With().Str("component", "summary-scheduler").Logger(),
		stopChan:      make(chan struct{}),
	}, nil
}

// SetClock sets the clock used for day boundaries (for testing).
func (ss *SummaryScheduler) SetClock(clock schedule.Clock) {
	ss.clock = clock
}

// Start begins the summary scheduler.
func (ss *SummaryScheduler) Start() {
	go ss.run()
	ss.logger.Info().
		Str("summary_time", ss.summaryTime.Format("15:04")).
		Int("retention_days", ss.retentionDays).
		Msg("Daily summary scheduler started")
}

// Stop stops the summary scheduler.
func (ss *SummaryScheduler) Stop() {
	close(ss.stopChan)
	ss.logger.Info().Msg("Daily summary scheduler stopped")
}

// run is the main scheduler loop.
func (ss *SummaryScheduler) run() {
	ss.catchUp(context.Background())
	for {
		nextRun := ss.calculateNextRun()
		waitDuration := nextRun.Sub(ss.clock.Now())

		ss.logger.Info().
			Time("next_run", nextRun).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily summary")

		select {
		case <-time.After(waitDuration):
			ss.RunOnce(context.Background())
		case <-ss.stopChan:
			return
		}
	}
}

// calculateNextRun calculates the next summary run time.
func (ss *SummaryScheduler) calculateNextRun() time.Time {
	now := ss.clock.Now()

	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		ss.summaryTime.Hour(), ss.summaryTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1)
	}

	return todayRun
}

// catchUp runs the summary immediately when today's scheduled run already
// passed but the previous day was never rolled up, so a service that was
// down across the tick does not lose a day.
func (ss *SummaryScheduler) catchUp(ctx context.Context) {
	now := ss.clock.Now()
	todayRun := time.Date(
		now.Year(), now.Month(), now.Day(),
		ss.summaryTime.Hour(), ss.summaryTime.Minute(), 0, 0,
		now.Location(),
	)
	if now.Before(todayRun) {
		return
	}

	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	last, err := ss.store.State().LastSummaryDate(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		ss.logger.Error().Err(err).Msg("Failed to read last summary date")
		return
	}
	if last == yesterday {
		return
	}

	ss.logger.Info().Str("last_summary", last).Msg("Catching up on missed daily summary")
	ss.RunOnce(ctx)
}

// RunOnce summarizes the previous calendar day and prunes old data. A day
// already recorded in the last-summary marker is skipped, so RunOnce is
// safe to call again after a restart.
func (ss *SummaryScheduler) RunOnce(ctx context.Context) {
	now := ss.clock.Now()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayStart := dayEnd.AddDate(0, 0, -1)
	date := dayStart.Format("2006-01-02")

	if last, err := ss.store.State().LastSummaryDate(ctx); err == nil && last == date {
		ss.logger.Debug().Str("date", date).Msg("Daily summary already recorded")
		return
	}

	ss.logger.Info().Str("date", date).Msg("Summarizing daily usage")

	totals := ss.aggregator.ComputeUsage(ctx, dayStart.UnixMilli(), dayEnd.UnixMilli(), "")
	for pkg, ms := range totals {
		if err := ss.store.Usage().IncrementDailyUsage(ctx, date, pkg, ms); err != nil {
			ss.logger.Error().Err(err).Str("package", pkg).Msg("Failed to record daily usage")
			continue
		}
		metrics.UsageMinutesConsumed.WithLabelValues(pkg).Add(float64(ms) / 60000.0)
	}
	if err := ss.store.State().SetLastSummaryDate(ctx, date); err != nil {
		ss.logger.Error().Err(err).Msg("Failed to record last summary date")
	}
	ss.logger.Info().
		Str("date", date).
		Int("packages", len(totals)).
		Msg("Daily summary complete")

	if ss.retentionDays <= 0 {
		return
	}

	cutoff := now.AddDate(0, 0, -ss.retentionDays)
	cutoffDate := cutoff.Format("2006-01-02")

	deleted, err := ss.store.Usage().DeleteDailyUsageBefore(ctx, cutoffDate)
	if err != nil {
		ss.logger.Error().Err(err).Msg("Failed to prune old daily usage")
	} else if deleted > 0 {
		ss.logger.Info().
			Int("entries_deleted", deleted).
			Str("cutoff_date", cutoffDate).
			Msg("Old daily usage pruned")
	}

	pruned, err := ss.store.Usage().DeleteEventsBefore(ctx, cutoff.UnixMilli())
	if err != nil {
		ss.logger.Error().Err(err).Msg("Failed to prune old events")
	} else if pruned > 0 {
		ss.logger.Info().
			Int("events_deleted", pruned).
			Str("cutoff_date", cutoffDate).
			Msg("Old events pruned")
	}
}
