package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// RoutineHandler handles routine-related API requests.
type RoutineHandler struct {
	store     storage.RoutineStore
	manager   *routine.Manager
	scheduler *routine.Scheduler
	logger    zerolog.Logger
}

// NewRoutineHandler creates a new routine handler.
func NewRoutineHandler(store storage.RoutineStore, manager *routine.Manager, scheduler *routine.Scheduler, logger zerolog.Logger) *RoutineHandler {
	return &RoutineHandler{
		store:     store,
		manager:   manager,
		scheduler: scheduler,
		logger:    logger.With().Str("handler", "routine").Logger(),
	}
}

// List returns all routines.
func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	routines, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list routines")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve routines")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routines": routines,
		"count":    len(routines),
	})
}

// Get returns a single routine by ID.
func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	found, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Routine not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get routine")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve routine")
		return
	}

	writeJSON(w, http.StatusOK, found)
}

// Create creates a new routine.
func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var rec storage.Routine
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if rec.Name == "" {
		writeError(w, http.StatusBadRequest, "Routine name is required")
		return
	}
	if msg, ok := validateSchedule(rec.Schedule); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if rec.ID == "" {
		rec.ID = generateID("routine")
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := h.store.Upsert(ctx, rec); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create routine")
		writeError(w, http.StatusInternalServerError, "Failed to create routine")
		return
	}

	h.scheduler.Evaluate(ctx)
	h.logger.Info().Str("id", rec.ID).Str("name", rec.Name).Msg("Routine created")
	writeJSON(w, http.StatusCreated, rec)
}

// Update updates an existing routine.
func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	existing, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Routine not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get routine")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve routine")
		return
	}

	var updates storage.Routine
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Preserve ID and creation time
	updates.ID = existing.ID
	updates.CreatedAt = existing.CreatedAt
	updates.UpdatedAt = time.Now()

	if updates.Name == "" {
		writeError(w, http.StatusBadRequest, "Routine name is required")
		return
	}
	if msg, ok := validateSchedule(updates.Schedule); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Upsert(ctx, updates); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to update routine")
		writeError(w, http.StatusInternalServerError, "Failed to update routine")
		return
	}

	// An edit may change the active routine's limits or end its window.
	if err := h.manager.Refresh(ctx); err != nil {
		h.logger.Error().Err(err).Msg("Failed to refresh limit snapshot")
	}
	h.scheduler.Evaluate(ctx)

	h.logger.Info().Str("id", id).Str("name", updates.Name).Msg("Routine updated")
	writeJSON(w, http.StatusOK, updates)
}

// Delete deletes a routine.
func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.store.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Routine not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to delete routine")
		writeError(w, http.StatusInternalServerError, "Failed to delete routine")
		return
	}

	if active := h.manager.Active(); active != nil && active.ID == id {
		if err := h.manager.Deactivate(ctx); err != nil {
			h.logger.Error().Err(err).Msg("Failed to deactivate deleted routine")
		}
	}

	h.logger.Info().Str("id", id).Msg("Routine deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Routine deleted successfully",
	})
}

// Start manually activates a routine.
func (h *RoutineHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if err := h.manager.Activate(ctx, id, "manual"); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Routine not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to start routine")
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Routine started",
	})
}

// Stop deactivates the routine if it is the active one.
func (h *RoutineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	active := h.manager.Active()
	if active == nil || active.ID != id {
		writeError(w, http.StatusConflict, "Routine is not active")
		return
	}

	if err := h.manager.Deactivate(ctx); err != nil {
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to stop routine")
		writeError(w, http.StatusInternalServerError, "Failed to stop routine")
		return
	}

	h.scheduler.Evaluate(ctx)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Routine stopped",
	})
}

// ScheduleInfo reports the routine's current schedule evaluation: whether
// it is inside its window, the upcoming start and end edges, and the
// longest span a single window can cover.
func (h *RoutineHandler) ScheduleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	found, err := h.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Routine not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get routine")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve routine")
		return
	}

	now := time.Now()
	info := map[string]interface{}{
		"routine_id":   found.ID,
		"active":       false,
		"max_duration": schedule.MaxDuration(found.Schedule).String(),
	}

	if start, ok := schedule.ActiveStart(found.Schedule, now); ok {
		info["active"] = true
		info["active_since"] = start
	}
	if next, ok := schedule.NextTrigger(found.Schedule, now, schedule.EdgeStart); ok {
		info["next_start"] = next
	}
	if next, ok := schedule.NextTrigger(found.Schedule, now, schedule.EdgeEnd); ok {
		info["next_end"] = next
	}

	writeJSON(w, http.StatusOK, info)
}

// validateSchedule checks that a schedule is internally consistent enough
// to store. Scheduled types need both times; weekly needs at least one day.
func validateSchedule(s schedule.Schedule) (string, bool) {
	switch s.Type {
	case schedule.TypeManual, "":
		return "", true
	case schedule.TypeDaily, schedule.TypeWeekly:
		if s.Start == nil || s.End == nil {
			return "Scheduled routines require start_time and end_time", false
		}
		if s.Type == schedule.TypeWeekly && s.Days.Empty() {
			return "Weekly routines require at least one day", false
		}
		return "", true
	default:
		return "Unknown schedule type", false
	}
}
