package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/storage/bolt"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, storage.Store) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "screentime.bolt"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.Nop()
	aggregator := usage.NewAggregator(storage.NewEventSource(store.Usage()), usage.Config{}, logger)
	manager := routine.NewManager(store, logger)
	if err := manager.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	scheduler := routine.NewScheduler(store, manager, logger)

	return NewServer("127.0.0.1:0", store, manager, scheduler, aggregator, logger), store
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRoutineCRUD(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, "POST", "/api/routines", map[string]interface{}{
		"name": "Bedtime",
		"schedule": map[string]interface{}{
			"type":       "daily",
			"start_time": "21:00",
			"end_time":   "07:00",
		},
		"limits": []map[string]interface{}{
			{"package": "app.video", "limit_minutes": 15},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created storage.Routine
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Fatal("expected generated routine ID")
	}
	if created.Schedule.Type != schedule.TypeDaily {
		t.Errorf("schedule type = %q, want DAILY", created.Schedule.Type)
	}

	rec = doRequest(t, s, "GET", "/api/routines/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, s, "DELETE", "/api/routines/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, s, "GET", "/api/routines/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestRoutineCreateValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{
			"schedule": map[string]interface{}{"type": "MANUAL"},
		}},
		{"daily without times", map[string]interface{}{
			"name":     "Broken",
			"schedule": map[string]interface{}{"type": "DAILY"},
		}},
		{"weekly without days", map[string]interface{}{
			"name": "Broken",
			"schedule": map[string]interface{}{
				"type":       "WEEKLY",
				"start_time": "09:00",
				"end_time":   "17:00",
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, "POST", "/api/routines", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutineManualStartStop(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	if err := store.Routines().Upsert(ctx, storage.Routine{
		ID: "focus", Name: "Focus", Enabled: true,
		Schedule: schedule.Schedule{Type: schedule.TypeManual},
		Limits:   []storage.AppLimit{{Package: "app.social", LimitMinutes: 0}},
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := doRequest(t, s, "POST", "/api/routines/focus/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var status struct {
		ActiveRoutine *storage.Routine `json:"active_routine"`
	}
	rec = doRequest(t, s, "GET", "/api/status", nil)
	decodeBody(t, rec, &status)
	if status.ActiveRoutine == nil || status.ActiveRoutine.ID != "focus" {
		t.Fatalf("active routine = %v, want focus", status.ActiveRoutine)
	}

	// Stopping a non-active routine conflicts.
	rec = doRequest(t, s, "POST", "/api/routines/other/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("stop inactive status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, s, "POST", "/api/routines/focus/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}

	rec = doRequest(t, s, "GET", "/api/status", nil)
	decodeBody(t, rec, &status)
	if status.ActiveRoutine != nil {
		t.Error("expected no active routine after stop")
	}
}

func TestLimitsAndEffective(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	rec := doRequest(t, s, "PUT", "/api/limits/app.game", map[string]interface{}{"limit_minutes": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("set limit status = %d", rec.Code)
	}

	rec = doRequest(t, s, "PUT", "/api/limits/app.game", map[string]interface{}{"limit_minutes": -5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, "POST", "/api/whitelist/app.phone", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("whitelist status = %d", rec.Code)
	}

	// A routine override on top of the standing limit.
	if err := store.Routines().Upsert(ctx, storage.Routine{
		ID: "strict", Name: "Strict", Enabled: true,
		Schedule: schedule.Schedule{Type: schedule.TypeManual},
		Limits:   []storage.AppLimit{{Package: "app.game", LimitMinutes: 10}},
	}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	rec = doRequest(t, s, "POST", "/api/routines/strict/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	var effective struct {
		Limits    map[string]int `json:"limits"`
		RoutineID string         `json:"routine_id"`
	}
	rec = doRequest(t, s, "GET", "/api/limits/effective", nil)
	decodeBody(t, rec, &effective)
	if effective.Limits["app.game"] != 10 {
		t.Errorf("effective app.game = %d, want routine override 10", effective.Limits["app.game"])
	}
	if effective.RoutineID != "strict" {
		t.Errorf("routine_id = %q, want strict", effective.RoutineID)
	}
}

func TestUsageIngestAndQuery(t *testing.T) {
	s, _ := newTestServer(t)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	rec := doRequest(t, s, "POST", "/api/usage/events", map[string]interface{}{
		"events": []map[string]interface{}{
			{"package": "app.mail", "kind": "RESUMED", "timestamp": base},
			{"package": "app.mail", "kind": "PAUSED", "timestamp": base + 60_000},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var window struct {
		Usage map[string]int64 `json:"usage"`
	}
	path := fmt.Sprintf("/api/usage/window?start=%d&end=%d", base, base+120_000)
	rec = doRequest(t, s, "GET", path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("window status = %d", rec.Code)
	}
	decodeBody(t, rec, &window)
	if window.Usage["app.mail"] != 60_000 {
		t.Errorf("app.mail usage = %d, want 60000", window.Usage["app.mail"])
	}

	// Second identical query is served from cache with the same result.
	rec = doRequest(t, s, "GET", path, nil)
	decodeBody(t, rec, &window)
	if window.Usage["app.mail"] != 60_000 {
		t.Errorf("cached app.mail usage = %d, want 60000", window.Usage["app.mail"])
	}

	// New events invalidate the cache.
	rec = doRequest(t, s, "POST", "/api/usage/events", map[string]interface{}{
		"events": []map[string]interface{}{
			{"package": "app.mail", "kind": "RESUMED", "timestamp": base + 60_000},
			{"package": "app.mail", "kind": "PAUSED", "timestamp": base + 90_000},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("second ingest status = %d", rec.Code)
	}
	rec = doRequest(t, s, "GET", path, nil)
	decodeBody(t, rec, &window)
	if window.Usage["app.mail"] != 90_000 {
		t.Errorf("app.mail usage after ingest = %d, want 90000", window.Usage["app.mail"])
	}
}

func TestUsageIngestValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty batch", map[string]interface{}{"events": []map[string]interface{}{}}},
		{"missing package", map[string]interface{}{"events": []map[string]interface{}{
			{"kind": "RESUMED", "timestamp": 1000},
		}}},
		{"bad timestamp", map[string]interface{}{"events": []map[string]interface{}{
			{"package": "app.mail", "kind": "RESUMED", "timestamp": 0},
		}}},
		{"bad kind", map[string]interface{}{"events": []map[string]interface{}{
			{"package": "app.mail", "kind": "LAUNCHED", "timestamp": 1000},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, "POST", "/api/usage/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUsageHistoryParams(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, "GET", "/api/usage/history/app.mail?days=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad days status = %d, want 400", rec.Code)
	}

	var resp struct {
		Days    int              `json:"days"`
		History []usage.DayUsage `json:"history"`
	}
	rec = doRequest(t, s, "GET", "/api/usage/history/app.mail?days=500", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Days != 90 {
		t.Errorf("days = %d, want capped at 90", resp.Days)
	}
}
