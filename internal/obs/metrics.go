package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

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

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Policy evaluations by permission, outcome and deciding source.",
		},
		[]string{"permission", "outcome", "source"},
	)

	auditEmitFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_emit_failures_total",
			Help: "Audit events that could not be persisted after a committed mutation.",
		},
		[]string{"action"},
	)

	streamDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_events_dropped_total",
			Help: "Live events not delivered because a subscriber fell behind.",
		},
		[]string{"stream"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

// Init registers all service metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			authzDecisions,
			auditEmitFailures,
			streamDropped,
			readyGauge,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthzDecision counts a single policy evaluation.
func ObserveAuthzDecision(permission string, allowed bool, source string) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authzDecisions.WithLabelValues(permission, outcome, source).Inc()
}

// ObserveAuditFailure counts an audit write that was lost.
func ObserveAuditFailure(action string) {
	auditEmitFailures.WithLabelValues(action).Inc()
}

// ObserveStreamDrop counts an event skipped for a slow subscriber.
func ObserveStreamDrop(stream string) {
	streamDropped.WithLabelValues(stream).Inc()
}

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// collections whose following path segment is an identifier.
var idCollections = map[string]string{
	"workspaces": ":workspaceId",
	"boards":     ":boardId",
	"ideas":      ":ideaId",
	"members":    ":userId",
}

// CanonicalPath collapses identifiers in API paths so metric label
// cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	for i := 0; i < len(parts); i++ {
		seg := parts[i]
		if placeholder, ok := idCollections[seg]; ok && i+1 < len(parts) {
			next := parts[i+1]
			if seg == "members" && next == "invite" {
				i++
				continue
			}
			parts[i+1] = placeholder
			i++
			continue
		}
		if seg == "policies" && i+2 < len(parts) {
			parts[i+1] = ":role"
			parts[i+2] = ":permission"
			i += 2
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
