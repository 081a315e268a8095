package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/screentime/internal/metrics"
	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server is the REST API server.
type Server struct {
	store      storage.Store
	manager    *routine.Manager
	scheduler  *routine.Scheduler
	aggregator *usage.Aggregator
	server     *http.Server
	router     *mux.Router
	listener   net.Listener // Optional pre-created listener (for systemd socket activation)
	logger     zerolog.Logger
}

// NewServer creates the API server and wires up all routes.
func NewServer(addr string, store storage.Store, manager *routine.Manager, scheduler *routine.Scheduler, aggregator *usage.Aggregator, logger zerolog.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		store:      store,
		manager:    manager,
		scheduler:  scheduler,
		aggregator: aggregator,
		router:     router,
		logger:     logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(loggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")

	// Routine routes
	routineHandler := NewRoutineHandler(s.store.Routines(), s.manager, s.scheduler, s.logger)
	s.router.HandleFunc("/api/routines", routineHandler.List).Methods("GET")
	s.router.HandleFunc("/api/routines", routineHandler.Create).Methods("POST")
	s.router.HandleFunc("/api/routines/{id}", routineHandler.Get).Methods("GET")
	s.router.HandleFunc("/api/routines/{id}", routineHandler.Update).Methods("PUT")
	s.router.HandleFunc("/api/routines/{id}", routineHandler.Delete).Methods("DELETE")
	s.router.HandleFunc("/api/routines/{id}/start", routineHandler.Start).Methods("POST")
	s.router.HandleFunc("/api/routines/{id}/stop", routineHandler.Stop).Methods("POST")
	s.router.HandleFunc("/api/routines/{id}/schedule", routineHandler.ScheduleInfo).Methods("GET")

	// Limit and whitelist routes
	limitHandler := NewLimitHandler(s.store.Limits(), s.manager, s.logger)
	s.router.HandleFunc("/api/limits", limitHandler.List).Methods("GET")
	s.router.HandleFunc("/api/limits/effective", limitHandler.Effective).Methods("GET")
	s.router.HandleFunc("/api/limits/{package}", limitHandler.Set).Methods("PUT")
	s.router.HandleFunc("/api/limits/{package}", limitHandler.Remove).Methods("DELETE")
	s.router.HandleFunc("/api/whitelist", limitHandler.ListWhitelist).Methods("GET")
	s.router.HandleFunc("/api/whitelist/{package}", limitHandler.AddToWhitelist).Methods("POST")
	s.router.HandleFunc("/api/whitelist/{package}", limitHandler.RemoveFromWhitelist).Methods("DELETE")

	// Usage routes
	usageHandler := NewUsageHandler(s.store.Usage(), s.aggregator, s.manager, s.logger)
	s.router.HandleFunc("/api/usage/events", usageHandler.Ingest).Methods("POST")
	s.router.HandleFunc("/api/usage/today", usageHandler.Today).Methods("GET")
	s.router.HandleFunc("/api/usage/today/{package}", usageHandler.TodayPackage).Methods("GET")
	s.router.HandleFunc("/api/usage/window", usageHandler.Window).Methods("GET")
	s.router.HandleFunc("/api/usage/history/{package}", usageHandler.History).Methods("GET")
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"active_routine": nil,
	}

	if active := s.manager.Active(); active != nil {
		status["active_routine"] = active
	}
	if snapshot := s.manager.Snapshot(); snapshot != nil {
		status["effective_limits"] = snapshot.Limits
	}

	writeJSON(w, http.StatusOK, status)
}

// loggingMiddleware logs each request and records API metrics.
func loggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap the response writer to capture the status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			metrics.APIRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.APIRequestDuration.WithLabelValues(path).Observe(duration.Seconds())

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Msg("API request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
