// Package metrics provides Prometheus metrics for the VPAID host bridge
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Ad session metrics
	EventsDispatched *prometheus.CounterVec
	ProtocolMisuse   *prometheus.CounterVec
	CreativeErrors   *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	SessionsExpired  prometheus.Counter
	JournalErrors    prometheus.Counter

	// System metrics
	RateLimitRejected prometheus.Counter
	AuthFailures      prometheus.Counter
}

// NewMetricsWithRegistry creates metrics registered with reg
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vpaid"
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		EventsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dispatched_total",
				Help:      "Ad events dispatched to the host",
			},
			[]string{"event", "variant"},
		),
		ProtocolMisuse: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_misuse_total",
				Help:      "Host operations ignored because the ad was in the wrong state",
			},
			[]string{"op", "state"},
		),
		CreativeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "creative_errors_total",
				Help:      "Creatives rejected at init or unable to play",
			},
			[]string{"reason"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Ad sessions currently held in memory",
			},
		),
		SessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_expired_total",
				Help:      "Ad sessions reaped after their TTL",
			},
		),
		JournalErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_errors_total",
				Help:      "Event journal writes that failed",
			},
		),

		RateLimitRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejected_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
		AuthFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Requests rejected for a missing or invalid API key",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.EventsDispatched,
		m.ProtocolMisuse,
		m.CreativeErrors,
		m.ActiveSessions,
		m.SessionsExpired,
		m.JournalErrors,
		m.RateLimitRejected,
		m.AuthFailures,
	)

	return m
}

// HandlerFor serves metrics from a specific registry
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware returns HTTP middleware that records request metrics.
// Paths are labelled by route pattern so session IDs do not become labels.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
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

// EventObserver returns a bus observer counting events for one variant
func (m *Metrics) EventObserver(variant vpaid.Variant) vpaid.Observer {
	v := variant.String()
	return func(name vpaid.EventName, _ []any) {
		m.EventsDispatched.WithLabelValues(string(name), v).Inc()
		if name == vpaid.AdError {
			m.CreativeErrors.WithLabelValues("ad_error").Inc()
		}
	}
}

// RecordMisuse counts an operation absorbed as a no-op
func (m *Metrics) RecordMisuse(op string, state vpaid.State) {
	m.ProtocolMisuse.WithLabelValues(op, state.String()).Inc()
}

// RecordCreativeParseError counts creatives rejected at init
func (m *Metrics) RecordCreativeParseError() {
	m.CreativeErrors.WithLabelValues("parse").Inc()
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed(expired bool) {
	m.ActiveSessions.Dec()
	if expired {
		m.SessionsExpired.Inc()
	}
}

// IncJournalErrors counts a failed journal write
func (m *Metrics) IncJournalErrors() {
	m.JournalErrors.Inc()
}

// IncRateLimitRejected increments the rate limit rejected counter
func (m *Metrics) IncRateLimitRejected() {
	m.RateLimitRejected.Inc()
}

// IncAuthFailures increments the auth failures counter
func (m *Metrics) IncAuthFailures() {
	m.AuthFailures.Inc()
}
