package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	schedulesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_schedules_created_total",
			Help: "Total number of follow-up schedules created",
		},
		[]string{"surgery_type"},
	)

	followUpsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "followups_sent_total",
			Help: "Total number of follow-up messages dispatched",
		},
	)

	followUpStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_status_changed_total",
			Help: "Total number of follow-up status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	triageVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_verdicts_total",
			Help: "Total number of triage verdicts by urgency",
		},
		[]string{"urgency", "source"},
	)

	triageFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_fallbacks_total",
			Help: "Total number of triage verdicts produced by the keyword fallback",
		},
	)

	nlpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nlp_request_duration_seconds",
			Help:    "NLP triage request duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	doctorAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_alerts_total",
			Help: "Total number of doctor alerts raised",
		},
		[]string{"reason"},
	)

	messagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_dispatched_total",
			Help: "Total number of outbound patient messages",
		},
		[]string{"channel", "status"},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordScheduleCreated records a successful follow-up schedule creation
func RecordScheduleCreated(surgeryType string) {
	schedulesCreated.WithLabelValues(surgeryType).Inc()
}

// RecordFollowUpSent records a dispatched follow-up message
func RecordFollowUpSent() {
	followUpsSent.Inc()
}

// RecordFollowUpStatusChange records a lifecycle transition
func RecordFollowUpStatusChange(fromStatus, toStatus string) {
	followUpStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordTriageVerdict records a triage outcome; source is "nlp" or "fallback"
func RecordTriageVerdict(urgency, source string) {
	triageVerdicts.WithLabelValues(urgency, source).Inc()
	if source == "fallback" {
		triageFallbacks.Inc()
	}
}

// RecordNLPRequest records an NLP collaborator call
func RecordNLPRequest(status string, duration time.Duration) {
	nlpRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDoctorAlert records a doctor alert being raised
func RecordDoctorAlert(reason string) {
	doctorAlerts.WithLabelValues(reason).Inc()
}

// RecordMessageDispatched records an outbound patient message attempt
func RecordMessageDispatched(channel, status string) {
	messagesDispatched.WithLabelValues(channel, status).Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
