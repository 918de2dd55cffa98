package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every handler behind Instrument.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Gateway decision metrics.
var (
	admissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_total",
			Help: "Admission decisions by outcome.",
		},
		[]string{"outcome"},
	)

	tokenRefreshTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_token_refresh_total",
		Help: "Token pairs re-issued via the refresh path.",
	})

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Proxy requests that failed to reach a backend.",
		},
		[]string{"target"},
	)

	credentialBorrowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_credential_borrows_total",
			Help: "Credential pool borrow attempts by outcome.",
		},
		[]string{"source", "outcome"},
	)
)

// Init registers all gateway metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		admissionTotal, tokenRefreshTotal, upstreamErrorsTotal, credentialBorrowsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAdmission counts one admission decision ("admitted", "denied",
// "unauthenticated", "unknown_route").
func ObserveAdmission(outcome string) {
	admissionTotal.WithLabelValues(outcome).Inc()
}

// ObserveTokenRefresh counts one successful token rotation.
func ObserveTokenRefresh() {
	tokenRefreshTotal.Inc()
}

// ObserveUpstreamError counts one unreachable-backend failure for a logical target.
func ObserveUpstreamError(target string) {
	upstreamErrorsTotal.WithLabelValues(target).Inc()
}

// ObserveCredentialBorrow counts one pool borrow attempt ("ok", "empty", "error").
func ObserveCredentialBorrow(source, outcome string) {
	credentialBorrowsTotal.WithLabelValues(source, outcome).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
