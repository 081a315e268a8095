package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const usageCacheSize = 256

// UsageHandler handles event ingestion and usage query API requests.
// Window query results are cached; any ingest purges the cache since new
// events can change any window that overlaps them.
type UsageHandler struct {
	store      storage.UsageStore
	aggregator *usage.Aggregator
	manager    *routine.Manager
	cache      *lru.Cache[string, map[string]int64]
	logger     zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(store storage.UsageStore, aggregator *usage.Aggregator, manager *routine.Manager, logger zerolog.Logger) *UsageHandler {
	cache, _ := lru.New[string, map[string]int64](usageCacheSize)
	return &UsageHandler{
		store:      store,
		aggregator: aggregator,
		manager:    manager,
		cache:      cache,
		logger:     logger.With().Str("handler", "usage").Logger(),
	}
}

type ingestRequest struct {
	Events []usage.Event `json:"events"`
}

// Ingest appends a batch of lifecycle events to the event log.
func (h *UsageHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "At least one event is required")
		return
	}

	for i, event := range req.Events {
		if event.Package == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Event %d is missing a package", i))
			return
		}
		if event.Timestamp <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Event %d has an invalid timestamp", i))
			return
		}
	}

	for _, event := range req.Events {
		if err := h.store.AddEvent(ctx, event); err != nil {
			h.logger.Error().Err(err).Str("package", event.Package).Msg("Failed to store event")
			writeError(w, http.StatusInternalServerError, "Failed to store events")
			return
		}
		metrics.EventsIngested.WithLabelValues(string(event.Kind)).Inc()
	}

	h.cache.Purge()

	h.logger.Debug().Int("count", len(req.Events)).Msg("Events ingested")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ingested": len(req.Events),
	})
}

// Today returns per-package usage since local midnight.
func (h *UsageHandler) Today(w http.ResponseWriter, r *http.Request) {
	totals := h.aggregator.TodayUsage(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage": totals,
	})
}

// TodayPackage returns today's usage for one package together with its
// effective limit, if any.
func (h *UsageHandler) TodayPackage(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	usedMs := h.aggregator.PackageUsageToday(r.Context(), pkg)
	resp := map[string]interface{}{
		"package":  pkg,
		"used_ms":  usedMs,
		"limited":  false,
		"exceeded": false,
	}

	if minutes, ok := h.manager.LimitFor(pkg); ok {
		limitMs := int64(minutes) * 60 * 1000
		resp["limited"] = true
		resp["limit_minutes"] = minutes
		resp["remaining_ms"] = max(limitMs-usedMs, 0)
		if usedMs >= limitMs {
			resp["exceeded"] = true
			metrics.LimitViolations.WithLabelValues(pkg).Inc()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Window returns per-package usage over an arbitrary window given by
// millisecond epoch query parameters.
func (h *UsageHandler) Window(w http.ResponseWriter, r *http.Request) {
	start, err := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start parameter")
		return
	}
	end, err := strconv.ParseInt(r.URL.Query().Get("end"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end parameter")
		return
	}
	pkg := r.URL.Query().Get("package")

	key := fmt.Sprintf("%d|%d|%s", start, end, pkg)
	totals, ok := h.cache.Get(key)
	if ok {
		metrics.UsageCacheHits.Inc()
	} else {
		metrics.UsageCacheMisses.Inc()
		totals = h.aggregator.ComputeUsage(r.Context(), start, end, pkg)
		h.cache.Add(key, totals)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start": start,
		"end":   end,
		"usage": totals,
	})
}

// History returns one entry per day for the last N days for a package.
// days defaults to 7 and is capped at 90.
func (h *UsageHandler) History(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["package"]

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid days parameter")
			return
		}
		days = parsed
	}
	if days > 90 {
		days = 90
	}

	history := h.aggregator.DailyHistory(r.Context(), pkg, days)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package": pkg,
		"days":    days,
		"history": history,
	})
}
