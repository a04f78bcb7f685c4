package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwire_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadwire_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "leadwire_http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	teasersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_teasers_sent_total",
			Help: "Total number of teaser SMS delivered to the gateway",
		},
	)

	revealsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadwire_reveals_sent_total",
			Help: "Total number of contact reveal SMS delivered",
		},
	)

	effectRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwire_effect_retries_total",
			Help: "Total number of effect dispatch retries",
		},
		[]string{"kind"},
	)

	effectsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwire_effects_escalated_total",
			Help: "Total number of effects dead-lettered after exhausting retries",
		},
		[]string{"kind"},
	)

	integrationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadwire_integration_errors_total",
			Help: "Total number of integration errors",
		},
		[]string{"service"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

func RecordTeaserSent() {
	teasersSent.Inc()
}

func RecordRevealSent() {
	revealsSent.Inc()
}

func RecordEffectRetry(kind string) {
	effectRetries.WithLabelValues(kind).Inc()
}

func RecordEffectEscalated(kind string) {
	effectsEscalated.WithLabelValues(kind).Inc()
}

func RecordIntegrationError(service string) {
	integrationErrors.WithLabelValues(service).Inc()
}
