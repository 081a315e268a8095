package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// LimitHandler handles standing limit and whitelist API requests.
type LimitHandler struct {
	store   storage.LimitStore
	manager *routine.Manager
	logger  zerolog.Logger
}

// NewLimitHandler creates a new limit handler.
func NewLimitHandler(store storage.LimitStore, manager *routine.Manager, logger zerolog.Logger) *LimitHandler {
	return &LimitHandler{
		store:   store,
		manager: manager,
		logger:  logger.With().Str("handler", "limit").Logger(),
	}
}

// List returns all standing limits.
func (h *LimitHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limits, err := h.store.ListLimits(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list limits")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve limits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits": limits,
		"count":  len(limits),
	})
}

// Effective returns the current effective limit set: standing limits merged
// with the active routine's overrides, minus whitelisted packages.
func (h *LimitHandler) Effective(w http.ResponseWriter, r *http.Request) {
	snapshot := h.manager.Snapshot()
	if snapshot == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"limits": map[string]int{}})
		return
	}

	effective := make(map[string]int, len(snapshot.Limits))
	for pkg, minutes := range snapshot.Limits {
		if !snapshot.Whitelist[pkg] {
			effective[pkg] = minutes
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits":     effective,
		"routine_id": snapshot.RoutineID,
	})
}

type setLimitRequest struct {
	LimitMinutes int `json:"limit_minutes"`
}

// Set creates or replaces the standing limit for a package.
func (h *LimitHandler) Set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg := mux.Vars(r)["package"]

	var req setLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LimitMinutes < 0 {
		writeError(w, http.StatusBadRequest, "limit_minutes must not be negative")
		return
	}

	if err := h.store.SetLimit(ctx, pkg, req.LimitMinutes); err != nil {
		h.logger.Error().Err(err).Str("package", pkg).Msg("Failed to set limit")
		writeError(w, http.StatusInternalServerError, "Failed to set limit")
		return
	}

	h.refreshSnapshot(r)
	h.logger.Info().Str("package", pkg).Int("minutes", req.LimitMinutes).Msg("Limit set")
	writeJSON(w, http.StatusOK, storage.AppLimit{Package: pkg, LimitMinutes: req.LimitMinutes})
}

// Remove deletes the standing limit for a package.
func (h *LimitHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg := mux.Vars(r)["package"]

	if err := h.store.RemoveLimit(ctx, pkg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Limit not found")
			return
		}
		h.logger.Error().Err(err).Str("package", pkg).Msg("Failed to remove limit")
		writeError(w, http.StatusInternalServerError, "Failed to remove limit")
		return
	}

	h.refreshSnapshot(r)
	h.logger.Info().Str("package", pkg).Msg("Limit removed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Limit removed successfully",
	})
}

// ListWhitelist returns all whitelisted packages.
func (h *LimitHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	packages, err := h.store.ListWhitelist(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list whitelist")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve whitelist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"packages": packages,
		"count":    len(packages),
	})
}

// AddToWhitelist exempts a package from all limiting.
func (h *LimitHandler) AddToWhitelist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg := mux.Vars(r)["package"]

	if err := h.store.AddToWhitelist(ctx, pkg); err != nil {
		h.logger.Error().Err(err).Str("package", pkg).Msg("Failed to whitelist package")
		writeError(w, http.StatusInternalServerError, "Failed to whitelist package")
		return
	}

	h.refreshSnapshot(r)
	h.logger.Info().Str("package", pkg).Msg("Package whitelisted")
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Package whitelisted",
	})
}

// RemoveFromWhitelist removes a package's exemption.
func (h *LimitHandler) RemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pkg := mux.Vars(r)["package"]

	if err := h.store.RemoveFromWhitelist(ctx, pkg); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Package not whitelisted")
			return
		}
		h.logger.Error().Err(err).Str("package", pkg).Msg("Failed to remove whitelist entry")
		writeError(w, http.StatusInternalServerError, "Failed to remove whitelist entry")
		return
	}

	h.refreshSnapshot(r)
	h.logger.Info().Str("package", pkg).Msg("Whitelist entry removed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Whitelist entry removed",
	})
}

func (h *LimitHandler) refreshSnapshot(r *http.Request) {
	if err := h.manager.Refresh(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to refresh limit snapshot")
	}
}
