package routine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/rs/zerolog"
)

// LimitSnapshot is the effective per-package limit set at a point in time:
// standing daily limits overlaid with the active routine's limits. Packages
// on the whitelist are absent.
type LimitSnapshot struct {
	RoutineID string
	Limits    map[string]int // package -> minutes
	Whitelist map[string]bool
}

// LimitFor returns the effective limit for a package, or false if the
// package is unrestricted.
func (s *LimitSnapshot) LimitFor(pkg string) (int, bool) {
	if s == nil || s.Whitelist[pkg] {
		return 0, false
	}
	minutes, ok := s.Limits[pkg]
	return minutes, ok
}

// Manager tracks the currently active routine and maintains the effective
// limit snapshot. All limit lookups go through the snapshot so a routine
// transition mid-evaluation cannot produce a mixed view.
type Manager struct {
	store  storage.Store
	logger zerolog.Logger

	mu       sync.RWMutex
	active   *storage.Routine
	snapshot *LimitSnapshot
}

// NewManager creates a routine manager backed by the given store.
func NewManager(store storage.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "routine-manager").Logger(),
	}
}

// Restore reloads the active routine marker from storage and rebuilds the
// snapshot. Called once at startup so an activation survives a restart.
func (m *Manager) Restore(ctx context.Context) error {
	id, err := m.store.State().ActiveRoutine(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return m.rebuild(ctx, nil)
		}
		return fmt.Errorf("failed to load active routine: %w", err)
	}

	active, err := m.store.Routines().Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// The routine was deleted while active; drop the marker.
			m.logger.Warn().Str("routine_id", id).Msg("Active routine no longer exists, clearing")
			if err := m.store.State().ClearActiveRoutine(ctx); err != nil {
				return err
			}
			return m.rebuild(ctx, nil)
		}
		return fmt.Errorf("failed to load routine %q: %w", id, err)
	}

	m.logger.Info().Str("routine_id", id).Str("name", active.Name).Msg("Restored active routine")
	return m.rebuild(ctx, active)
}

// Activate marks the routine active, persists the marker, and rebuilds the
// limit snapshot. trigger is recorded for observability ("schedule" or
// "manual").
func (m *Manager) Activate(ctx context.Context, id, trigger string) error {
	routine, err := m.store.Routines().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load routine %q: %w", id, err)
	}
	if !routine.Enabled {
		return fmt.Errorf("routine %q is disabled", id)
	}

	if err := m.store.State().SetActiveRoutine(ctx, id); err != nil {
		return fmt.Errorf("failed to persist active routine: %w", err)
	}

	if err := m.rebuild(ctx, routine); err != nil {
		return err
	}

	metrics.RoutineActivations.WithLabelValues(routine.Name, trigger).Inc()
	metrics.RoutineActive.Set(1)
	m.logger.Info().
		Str("routine_id", id).
		Str("name", routine.Name).
		Str("trigger", trigger).
		Msg("Routine activated")
	return nil
}

// Deactivate clears the active routine and rebuilds the snapshot from
// standing limits only. Deactivating when nothing is active is a no-op.
func (m *Manager) Deactivate(ctx context.Context) error {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	if err := m.store.State().ClearActiveRoutine(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to clear active routine: %w", err)
	}

	if err := m.rebuild(ctx, nil); err != nil {
		return err
	}

	metrics.RoutineActive.Set(0)
	if active != nil {
		m.logger.Info().Str("routine_id", active.ID).Str("name", active.Name).Msg("Routine deactivated")
	}
	return nil
}

// Refresh rebuilds the snapshot without changing the active routine. Called
// after standing limits or the whitelist change.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	if active != nil {
		// Re-read so edits to the routine's limits take effect.
		fresh, err := m.store.Routines().Get(ctx, active.ID)
		if err == nil {
			active = fresh
		} else if errors.Is(err, storage.ErrNotFound) {
			active = nil
		} else {
			return err
		}
	}
	return m.rebuild(ctx, active)
}

// Active returns the currently active routine, or nil.
func (m *Manager) Active() *storage.Routine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Snapshot returns the current effective limit snapshot.
func (m *Manager) Snapshot() *LimitSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// LimitFor returns the effective limit in minutes for a package, or false
// when the package is unrestricted or whitelisted.
func (m *Manager) LimitFor(pkg string) (int, bool) {
	return m.Snapshot().LimitFor(pkg)
}

// rebuild computes a fresh snapshot from standing limits, the whitelist, and
// the given routine's limits, then swaps it in along with the routine.
func (m *Manager) rebuild(ctx context.Context, active *storage.Routine) error {
	standing, err := m.store.Limits().ListLimits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list limits: %w", err)
	}

	whitelist, err := m.store.Limits().ListWhitelist(ctx)
	if err != nil {
		return fmt.Errorf("failed to list whitelist: %w", err)
	}

	snapshot := &LimitSnapshot{
		Limits:    make(map[string]int, len(standing)),
		Whitelist: make(map[string]bool, len(whitelist)),
	}
	for pkg, minutes := range standing {
		snapshot.Limits[pkg] = minutes
	}
	for _, pkg := range whitelist {
		snapshot.Whitelist[pkg] = true
	}

	if active != nil {
		snapshot.RoutineID = active.ID
		// Routine limits override standing limits for the same package.
		for _, limit := range active.Limits {
			snapshot.Limits[limit.Package] = limit.LimitMinutes
		}
	}

	m.mu.Lock()
	m.active = active
	m.snapshot = snapshot
	m.mu.Unlock()

	m.logger.Debug().
		Int("limits", len(snapshot.Limits)).
		Int("whitelisted", len(snapshot.Whitelist)).
		Bool("routine_active", active != nil).
		Msg("Limit snapshot rebuilt")
	return nil
}
