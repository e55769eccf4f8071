package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tracking metrics
	ActivityStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitiempo_activity_starts_total",
			Help: "Total activity start commands accepted",
		},
		[]string{"kind"},
	)

	ActivityStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitiempo_activity_stops_total",
			Help: "Total activity stop commands accepted",
		},
		[]string{"kind"},
	)

	TrackedMinutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitiempo_tracked_minutes_total",
			Help: "Total minutes recorded on closed intervals",
		},
		[]string{"kind"},
	)

	OpenActivities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mitiempo_open_activities",
			Help: "Number of currently running activities",
		},
	)

	ReconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mitiempo_reconcile_passes_total",
			Help: "Total reconciliation passes against the interval store",
		},
	)

	ReconcileCorrections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mitiempo_reconcile_corrections_total",
			Help: "Reconciliation passes that changed live activity state",
		},
	)

	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitiempo_store_errors_total",
			Help: "Interval store operation failures",
		},
		[]string{"op"},
	)

	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mitiempo_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mitiempo_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// Retention metrics
	IntervalsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mitiempo_intervals_deleted_total",
			Help: "Intervals removed by retention cleanup",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActivityStartsTotal,
		ActivityStopsTotal,
		TrackedMinutes,
		OpenActivities,
		ReconcilePasses,
		ReconcileCorrections,
		StoreErrors,
		RequestsTotal,
		RequestDuration,
		IntervalsDeleted,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server *http.Server
	logger zerolog.Logger
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

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
