package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the request-metrics middleware
// updates, adapted from the teacher's middleware.Metrics
// (internal/infrastructure/http/middleware/middleware.go) but scoped down
// to what this service actually exposes: request counts/latency and the
// active leak-session gauge.
type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	activeSessions  prometheus.GaugeFunc
}

// NewMetrics registers the leak service's collectors against reg.
// activeSessions is polled lazily by Prometheus's scrape, never pushed.
func NewMetrics(reg prometheus.Registerer, activeSessions func() float64) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fontleak_http_requests_total",
			Help: "Total HTTP requests processed, labelled by route and status class.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fontleak_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, labelled by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fontleak_active_sessions",
		Help: "Number of leak sessions currently tracked in memory.",
	}, activeSessions)

	reg.MustRegister(m.requests, m.duration, m.activeSessions)
	return m
}

// Instrument records one request's outcome against route, a caller-supplied
// logical route name rather than the raw path (which for /leak and / would
// otherwise fragment into one timeseries per session id).
func (m *Metrics) Instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			statusClass := statusClassOf(wrapped.statusCode)
			m.requests.WithLabelValues(route, statusClass).Inc()
			m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func statusClassOf(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
