package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route", "method"},
	)

	interviewCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_events_total",
			Help: "Total interview lifecycle events by name and labels",
		},
		[]string{"event", "label"},
	)
	interviewObservations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_observations",
			Help:    "Interview-domain observations (scores, durations, latencies)",
			Buckets: []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 30, 60, 120},
		},
		[]string{"name", "label"},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(interviewCounters)
	prometheus.MustRegister(interviewObservations)
}

// PromSink implements domain.MetricsSink on top of the registered Prometheus
// collectors. The core depends on the sink port only, never on this package.
type PromSink struct{}

// IncCounter increments the named event counter. At most the first label is
// used; missing labels collapse to an empty string.
func (PromSink) IncCounter(name string, labels ...string) {
	interviewCounters.WithLabelValues(name, first(labels)).Inc()
}

// Observe records a domain observation under the given name.
func (PromSink) Observe(name string, value float64, labels ...string) {
	interviewObservations.WithLabelValues(name, first(labels)).Observe(value)
}

func first(labels []string) string {
	if len(labels) > 0 {
		return labels[0]
	}
	return ""
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside the chi router; guard nil.
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
