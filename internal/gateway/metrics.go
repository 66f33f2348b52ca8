package gateway

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks gateway activity. Counters are exported on a private
// Prometheus registry and mirrored in atomics for the /status snapshot.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	chatReplies *prometheus.CounterVec
	chatErrors  prometheus.Counter
	factsStored prometheus.Counter
	wsClients   prometheus.Gauge

	messages     atomic.Int64
	learned      atomic.Int64
	errors       atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mimir",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mimir",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		chatReplies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mimir",
			Name:      "chat_replies_total",
			Help:      "Chat replies by message category and reply kind.",
		}, []string{"category", "kind"}),
		chatErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mimir",
			Name:      "chat_errors_total",
			Help:      "Chat messages that failed with an internal error.",
		}),
		factsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mimir",
			Name:      "facts_learned_total",
			Help:      "Facts stored or updated from chat messages.",
		}),
		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mimir",
			Name:      "websocket_clients",
			Help:      "Open websocket chat connections.",
		}),
	}
}

// RecordReply records a successful chat reply.
func (m *Metrics) RecordReply(category, kind string, learned int, latency time.Duration) {
	m.chatReplies.WithLabelValues(category, kind).Inc()
	m.factsStored.Add(float64(learned))
	m.messages.Add(1)
	m.learned.Add(int64(learned))
	m.totalLatency.Add(int64(latency))
}

// RecordError records a processing error.
func (m *Metrics) RecordError() {
	m.chatErrors.Inc()
	m.errors.Add(1)
}

// Snapshot returns a point-in-time view of the chat counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	messages := m.messages.Load()
	snap := MetricsSnapshot{
		Messages: messages,
		Learned:  m.learned.Load(),
		Errors:   m.errors.Load(),
	}
	if messages > 0 {
		snap.AvgLatencyMs = float64(m.totalLatency.Load()/messages) / float64(time.Millisecond)
	}
	return snap
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts and times requests by their chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Messages     int64   `json:"messages"`
	Learned      int64   `json:"facts_learned"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
