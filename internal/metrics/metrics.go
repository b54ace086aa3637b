// Package metrics holds the Prometheus collectors for the HTTP surface and the
// real-time layer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push results recorded by RecordPush.
const (
	ResultDelivered = "delivered"
	ResultMiss      = "miss"
	ResultFailed    = "failed"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kolmo",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kolmo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kolmo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	connectedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kolmo",
			Subsystem: "realtime",
			Name:      "connected_users",
			Help:      "Users with a registered live connection.",
		},
	)

	inboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kolmo",
			Subsystem: "realtime",
			Name:      "inbound_events_total",
			Help:      "Inbound frames by event kind.",
		},
		[]string{"type"},
	)

	outboundPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kolmo",
			Subsystem: "realtime",
			Name:      "outbound_pushes_total",
			Help:      "Outbound pushes by event kind and result.",
		},
		[]string{"type", "result"},
	)

	authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kolmo",
			Subsystem: "realtime",
			Name:      "auth_failures_total",
			Help:      "Rejected WebSocket handshakes by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		connectedUsers,
		inboundEvents,
		outboundPushes,
		authFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// WebSocket upgrades are passed through untouched because the hijacked
// connection cannot be wrapped.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// SetConnectedUsers records the current registry size.
func SetConnectedUsers(n int) {
	connectedUsers.Set(float64(n))
}

// RecordInbound counts one inbound frame of the given kind.
func RecordInbound(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	inboundEvents.WithLabelValues(kind).Inc()
}

// RecordPush counts one outbound push attempt.
func RecordPush(kind, result string) {
	outboundPushes.WithLabelValues(kind, result).Inc()
}

// RecordAuthFailure counts one rejected handshake.
func RecordAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses identifiers so label cardinality stays bounded.
func canonicalPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 1 && parts[0] == "" {
		return "/"
	}
	// /api/v1/messages/<anything>... keeps the first three segments.
	if len(parts) > 3 && parts[0] == "api" {
		return "/" + strings.Join(parts[:3], "/") + "/:id"
	}
	return "/" + strings.Join(parts, "/")
}
