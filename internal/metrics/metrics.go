package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Event ingestion metrics
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_events_ingested_total",
			Help: "Total usage events ingested",
		},
		[]string{"kind"},
	)

	// Usage metrics
	UsageMinutesConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_usage_minutes_consumed_total",
			Help: "Total usage minutes recorded per package",
		},
		[]string{"package"},
	)

	UsageAggregateFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_usage_aggregate_fallbacks_total",
			Help: "Times usage computation fell back to platform aggregates",
		},
	)

	// Routine metrics
	RoutineActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_routine_activations_total",
			Help: "Total routine activations",
		},
		[]string{"routine", "trigger"},
	)

	RoutineActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screentime_routine_active",
			Help: "Whether a routine is currently active (1 or 0)",
		},
	)

	// Limit metrics
	LimitViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_limit_violations_total",
			Help: "Total app limit violations detected",
		},
		[]string{"package"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screentime_api_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"path", "method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screentime_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Cache metrics
	UsageCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_usage_cache_hits_total",
			Help: "Usage query cache hits",
		},
	)

	UsageCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screentime_usage_cache_misses_total",
			Help: "Usage query cache misses",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		EventsIngested,
		UsageMinutesConsumed,
		UsageAggregateFallbacks,
		RoutineActivations,
		RoutineActive,
		LimitViolations,
		APIRequestsTotal,
		APIRequestDuration,
		UsageCacheHits,
		UsageCacheMisses,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
