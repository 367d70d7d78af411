package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

// Auth-domain metrics.
var (
	signInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sign_ins_total",
			Help: "Sign-in attempts by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	otpSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_sends_total",
			Help: "OTP SMS deliveries by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	otpVerifiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifies_total",
			Help: "OTP verification attempts by purpose and outcome.",
		},
		[]string{"purpose", "outcome"},
	)

	auditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit log writes that failed and were swallowed.",
		},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		signInsTotal, otpSendsTotal, otpVerifiesTotal, auditWriteFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSignIn records a sign-in attempt outcome.
func ObserveSignIn(strategy, outcome string) {
	signInsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveOTPSend records an OTP delivery outcome.
func ObserveOTPSend(purpose, outcome string) {
	otpSendsTotal.WithLabelValues(purpose, outcome).Inc()
}

// ObserveOTPVerify records an OTP verification outcome.
func ObserveOTPVerify(purpose, outcome string) {
	otpVerifiesTotal.WithLabelValues(purpose, outcome).Inc()
}

// ObserveAuditFailure counts a swallowed audit write failure.
func ObserveAuditFailure() {
	auditWriteFailures.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
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

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
