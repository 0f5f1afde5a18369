package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionOpened("room")
	m.ConnectionClosed("room")
	m.ConnectionRejected("identity_not_found")
	m.RoomCreated()
	m.RoomDestroyed()
	m.MessageHandled("codeUpdate", "routed")
	m.EditorHandoff("request")
	m.Evicted("peer_unreachable")
	m.MentorReleased()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened("room")
	m.ConnectionOpened("room")
	m.ConnectionClosed("room")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("room")))

	m.RoomCreated()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rooms))

	m.EditorHandoff("request")
	m.EditorHandoff("request")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.editorHandoffs.WithLabelValues("request")))

	m.MessageHandled("", "malformed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("unknown", "malformed")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/code-blocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/code-blocks/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/code-blocks/{id}", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "codeblocks_http_requests_total"))
}
