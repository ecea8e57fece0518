package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Consent lifecycle metrics
	consentOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consent_operations_total",
			Help: "Total number of consent operations",
		},
		[]string{"operation", "status"},
	)

	// Record event metrics
	recordEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_events_total",
			Help: "Total number of record access events",
		},
		[]string{"kind", "status"},
	)

	// Notarization metrics
	notarizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notarizations_total",
			Help: "Total number of best-effort ledger mirror attempts",
		},
		[]string{"event_kind", "outcome"},
	)

	// Ledger submission latency; confirmation can take multiple seconds
	ledgerSubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_submit_duration_seconds",
			Help:    "Duration of ledger submissions in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"event_kind"},
	)

	// Verification metrics
	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of ledger verification queries",
		},
		[]string{"query", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		consentOperationsTotal,
		recordEventsTotal,
		notarizationsTotal,
		ledgerSubmitDuration,
		verificationsTotal,
	)
}

// RecordConsentOperation records a grant/revoke outcome
func RecordConsentOperation(operation, status string) {
	consentOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordRecordEvent records an upload/view outcome
func RecordRecordEvent(kind, status string) {
	recordEventsTotal.WithLabelValues(kind, status).Inc()
}

// RecordNotarization records a mirror attempt outcome
func RecordNotarization(eventKind, outcome string) {
	notarizationsTotal.WithLabelValues(eventKind, outcome).Inc()
}

// ObserveLedgerSubmit records a ledger submission duration
func ObserveLedgerSubmit(eventKind string, duration time.Duration) {
	ledgerSubmitDuration.WithLabelValues(eventKind).Observe(duration.Seconds())
}

// RecordVerification records a verification query result
func RecordVerification(query, result string) {
	verificationsTotal.WithLabelValues(query, result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMiddleware records request count and latency per endpoint
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		statusCode := strconv.Itoa(wrapper.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, statusCode).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
