// Package telemetry exposes Prometheus metrics for the service: session
// lifecycle, pod synchronization failures and HTTP request durations.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors with their registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive  prometheus.GaugeFunc
	sessionsCreated prometheus.Counter
	sessionsSwept   prometheus.Counter
	podSyncFailures prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates a registry with the service collectors plus the
// standard Go runtime and process collectors. activeSessions is polled on
// scrape.
func NewMetrics(activeSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		sessionsActive: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "welldata_sessions_active",
			Help: "Number of live sessions.",
		}, func() float64 { return float64(activeSessions()) }),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "welldata_sessions_created_total",
			Help: "Total number of sessions created.",
		}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "welldata_sessions_swept_total",
			Help: "Total number of expired sessions reclaimed by the sweeper.",
		}),
		podSyncFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "welldata_pod_sync_failures_total",
			Help: "Total number of failed Solid pod operations.",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "welldata_http_request_duration_seconds",
			Help:    "HTTP request duration by method and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SessionCreated records a new session.
func (m *Metrics) SessionCreated() { m.sessionsCreated.Inc() }

// SessionsSwept records sessions reclaimed by a sweep.
func (m *Metrics) SessionsSwept(removed int) { m.sessionsSwept.Add(float64(removed)) }

// PodSyncFailure records a failed pod operation.
func (m *Metrics) PodSyncFailure() { m.podSyncFailures.Inc() }

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware observes request durations. It wraps the response writer to
// capture the status code actually written.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.requestDuration.WithLabelValues(r.Method, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}
