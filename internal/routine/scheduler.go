package routine

import (
	"context"
	"time"

	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// maxIdleWait bounds how long the scheduler sleeps when no trigger is in
// sight, so routines created or edited while idle are picked up.
const maxIdleWait = time.Hour

// Scheduler drives automatic routine transitions. It evaluates all enabled
// scheduled routines against the clock, activates the one whose window
// covers now, and sleeps until the next start or end edge.
//
// Manually activated routines are left alone: they end only through an
// explicit deactivation.
type Scheduler struct {
	store    storage.Store
	manager  *Manager
	clock    schedule.Clock
	logger   zerolog.Logger
	stopChan chan struct{}
}

// NewScheduler creates a scheduler over the given store and manager.
func NewScheduler(store storage.Store, manager *Manager, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		manager:  manager,
		clock:    schedule.RealClock{},
		logger:   logger.With().Str("component", "routine-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// SetClock sets the clock used for schedule evaluation (for testing).
func (s *Scheduler) SetClock(clock schedule.Clock) {
	s.clock = clock
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() {
	go s.run()
	s.logger.Info().Msg("Routine scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.logger.Info().Msg("Routine scheduler stopped")
}

// run is the main scheduler loop.
func (s *Scheduler) run() {
	for {
		wait := s.Evaluate(context.Background())

		s.logger.Debug().Dur("wait_duration", wait).Msg("Scheduled next routine check")

		select {
		case <-time.After(wait):
		case <-s.stopChan:
			return
		}
	}
}

// Evaluate performs one transition pass and returns how long to wait before
// the next one. Exported so tests and wake-from-suspend paths can force a
// re-evaluation.
func (s *Scheduler) Evaluate(ctx context.Context) time.Duration {
	now := s.clock.Now()

	routines, err := s.store.Routines().ListEnabled(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list routines, retrying shortly")
		return time.Minute
	}

	current := s.manager.Active()
	if current != nil && current.Schedule.Type == schedule.TypeManual {
		// A manual routine holds until explicitly stopped. Keep checking in
		// case it is deactivated out from under us.
		return s.nextWait(routines, now, false)
	}

	desired := selectActive(routines, now)

	switch {
	case desired == nil && current != nil:
		if err := s.manager.Deactivate(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to deactivate routine")
			return time.Minute
		}
	case desired != nil && (current == nil || current.ID != desired.ID):
		if err := s.manager.Activate(ctx, desired.ID, "schedule"); err != nil {
			s.logger.Error().Err(err).Str("routine_id", desired.ID).Msg("Failed to activate routine")
			return time.Minute
		}
	}

	return s.nextWait(routines, now, desired != nil)
}

// selectActive returns the enabled scheduled routine whose window covers
// now. When windows overlap the routine with the most recent start wins, so
// a later-starting routine takes over from one already running.
func selectActive(routines []storage.Routine, now time.Time) *storage.Routine {
	var best *storage.Routine
	var bestStart time.Time

	for i := range routines {
		r := &routines[i]
		start, ok := schedule.ActiveStart(r.Schedule, now)
		if !ok {
			continue
		}
		if best == nil || start.After(bestStart) {
			best = r
			bestStart = start
		}
	}
	return best
}

// nextWait returns the duration until the earliest upcoming start or end
// edge across all routines, capped at maxIdleWait.
func (s *Scheduler) nextWait(routines []storage.Routine, now time.Time, anyActive bool) time.Duration {
	wait := maxIdleWait

	consider := func(at time.Time, ok bool) {
		if !ok {
			return
		}
		if d := at.Sub(now); d > 0 && d < wait {
			wait = d
		}
	}

	for i := range routines {
		consider(schedule.NextTrigger(routines[i].Schedule, now, schedule.EdgeStart))
		if anyActive {
			consider(schedule.NextTrigger(routines[i].Schedule, now, schedule.EdgeEnd))
		}
	}

	// A sub-second wait would spin against clock granularity.
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}
