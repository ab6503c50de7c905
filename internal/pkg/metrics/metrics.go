/*
Package metrics defines the Prometheus collectors chatgate exports on /metrics.

All collectors are registered on a caller-supplied registry so tests can build isolated
instances. Every recording method is safe to call on a nil *Metrics.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgate"

// Metrics groups the application collectors.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	sessionOutcomes *prometheus.CounterVec

	wsConnections prometheus.Gauge
	wsHandshakes  *prometheus.CounterVec
	wsEvents      *prometheus.CounterVec
	wsDropped     prometheus.Counter

	messagesStored prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		sessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "evaluations_total",
			Help:      "Session evaluations by resulting state.",
		}, []string{"state"}),

		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Currently open socket connections.",
		}),

		wsHandshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "handshakes_total",
			Help:      "Socket handshakes by outcome.",
		}, []string{"outcome"}),

		wsEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Inbound socket events by name and result.",
		}, []string{"event", "result"}),

		wsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "slow_consumers_total",
			Help:      "Connections closed because their send queue was full.",
		}),

		messagesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_stored_total",
			Help:      "Chat messages persisted and broadcast.",
		}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SessionEvaluated counts one session evaluation ending in state.
func (m *Metrics) SessionEvaluated(state string) {
	if m == nil {
		return
	}
	m.sessionOutcomes.WithLabelValues(state).Inc()
}

// Handshake counts a socket handshake with outcome "accepted" or "rejected".
func (m *Metrics) Handshake(outcome string) {
	if m == nil {
		return
	}
	m.wsHandshakes.WithLabelValues(outcome).Inc()
}

// ConnectionOpened increments the open connection gauge.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

// ConnectionClosed decrements the open connection gauge.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// Event counts one inbound socket event. result is "ok" or an error kind.
func (m *Metrics) Event(name, result string) {
	if m == nil {
		return
	}
	m.wsEvents.WithLabelValues(name, result).Inc()
}

// SlowConsumer counts a connection dropped for a full send queue.
func (m *Metrics) SlowConsumer() {
	if m == nil {
		return
	}
	m.wsDropped.Inc()
}

// MessageStored counts a persisted chat message.
func (m *Metrics) MessageStored() {
	if m == nil {
		return
	}
	m.messagesStored.Inc()
}
