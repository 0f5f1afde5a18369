package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codeblocks"

// Metrics groups the collectors for the coordinator. A nil *Metrics is valid
// and records nothing, which keeps unit tests free of registry plumbing.
type Metrics struct {
	gatherer prometheus.Gatherer

	connections    *prometheus.GaugeVec
	rooms          prometheus.Gauge
	rejected       *prometheus.CounterVec
	messages       *prometheus.CounterVec
	editorHandoffs *prometheus.CounterVec
	evictions      *prometheus.CounterVec
	mentorReleases prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Currently registered connections by scope kind",
		}, []string{"scope"}),
		rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one member",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_connections_total",
			Help:      "Connections refused during the handshake",
		}, []string{"reason"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound frames by declared type and outcome",
		}, []string{"type", "outcome"}),
		editorHandoffs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "editor_handoffs_total",
			Help:      "Editor token transfers by cause",
		}, []string{"cause"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Connections removed by the server",
		}, []string{"reason"}),
		mentorReleases: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mentor_releases_total",
			Help:      "Times the active mentor slot was reopened",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}, []string{"method", "route", "status"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ConnectionOpened(scope string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(scope).Inc()
}

func (m *Metrics) ConnectionClosed(scope string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(scope).Dec()
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.rooms.Inc()
}

func (m *Metrics) RoomDestroyed() {
	if m == nil {
		return
	}
	m.rooms.Dec()
}

// MessageHandled records one inbound frame. outcome is "routed" or the drop reason.
func (m *Metrics) MessageHandled(messageType, outcome string) {
	if m == nil {
		return
	}
	if messageType == "" {
		messageType = "unknown"
	}
	m.messages.WithLabelValues(messageType, outcome).Inc()
}

// EditorHandoff records a token transfer: "join", "request" or "disconnect".
func (m *Metrics) EditorHandoff(cause string) {
	if m == nil {
		return
	}
	m.editorHandoffs.WithLabelValues(cause).Inc()
}

func (m *Metrics) Evicted(reason string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(reason).Inc()
}

func (m *Metrics) MentorReleased() {
	if m == nil {
		return
	}
	m.mentorReleases.Inc()
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := strconv.Itoa(ww.Status())
		m.httpRequests.WithLabelValues(r.Method, route, status).Inc()
		m.httpLatency.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry this Metrics was built on.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
