package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/identity"
	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

type stubStore struct {
	blocks    []*types.CodeBlock
	listErr   error
	healthErr error
}

func (s *stubStore) ListBlocks(ctx context.Context) ([]*types.CodeBlock, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.blocks, nil
}

func (s *stubStore) GetBlock(ctx context.Context, id string) (*types.CodeBlock, error) {
	for _, b := range s.blocks {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, interfaces.ErrBlockNotFound
}

func (s *stubStore) HealthCheck(ctx context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                          { return nil }

// recordingSockets captures which websocket endpoint a request reached.
type recordingSockets struct {
	lobby []string
	rooms [][2]string
}

func (rs *recordingSockets) HandleLobby(w http.ResponseWriter, r *http.Request) {
	rs.lobby = append(rs.lobby, chi.URLParam(r, "clientId"))
	w.WriteHeader(http.StatusNoContent)
}

func (rs *recordingSockets) HandleRoom(w http.ResponseWriter, r *http.Request) {
	rs.rooms = append(rs.rooms, [2]string{chi.URLParam(r, "roomId"), chi.URLParam(r, "clientId")})
	w.WriteHeader(http.StatusNoContent)
}

type fixture struct {
	store   *stubStore
	roles   *identity.Registry
	sockets *recordingSockets
	server  *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &stubStore{blocks: []*types.CodeBlock{
			{ID: "1", Title: "Async case", Template: "// a", Solution: "a"},
			{ID: "2", Title: "Array methods", Template: "// b", Solution: "b"},
		}},
		roles:   identity.NewRegistry(zap.NewNop(), nil),
		sockets: &recordingSockets{},
	}
	stats := func() Stats {
		s := f.roles.Stats()
		return Stats{AssignedIdentities: s.AssignedIdentities, MentorActive: s.MentorActive}
	}
	f.server = NewServer(f.store, f.roles, f.sockets, stats, Options{}, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestListBlocks(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/code-blocks")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListBlocksResponse
	decode(t, w, &resp)
	require.Len(t, resp.CodeBlocks, 2)
	assert.Equal(t, "Async case", resp.CodeBlocks[0].Title)
	assert.Equal(t, "2", resp.CodeBlocks[1].ID)
}

func TestListBlocks_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.listErr = errors.New("disk gone")

	w := f.do(t, http.MethodGet, "/code-blocks")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetBlock(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/code-blocks/2")
	require.Equal(t, http.StatusOK, w.Code)
	var block types.CodeBlock
	decode(t, w, &block)
	assert.Equal(t, "Array methods", block.Title)
	assert.Equal(t, "b", block.Solution)

	w = f.do(t, http.MethodGet, "/code-blocks/99")
	require.Equal(t, http.StatusNotFound, w.Code)
	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "Code block not found", errResp.Error)
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)

	var resp RoleResponse
	w := f.do(t, http.MethodGet, "/assign-role/c1")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, types.RoleMentor, resp.Role)

	w = f.do(t, http.MethodGet, "/assign-role/c2")
	decode(t, w, &resp)
	assert.Equal(t, types.RoleStudent, resp.Role)

	// idempotent per identity
	w = f.do(t, http.MethodGet, "/assign-role/c1")
	decode(t, w, &resp)
	assert.Equal(t, types.RoleMentor, resp.Role)
}

func TestAssignRole_InvalidClientID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/assign-role/"+strings.Repeat("x", 200))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.roles.Stats().AssignedIdentities)
}

func TestMyRole(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/my-role/c1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := f.roles.AssignRole("c1")
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/my-role/c1")
	require.Equal(t, http.StatusOK, w.Code)
	var resp RoleResponse
	decode(t, w, &resp)
	assert.Equal(t, types.RoleMentor, resp.Role)

	w = f.do(t, http.MethodGet, "/my-role/bad%20id")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	_, err := f.roles.AssignRole("c1")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 1, resp.Stats.AssignedIdentities)
	assert.True(t, resp.Stats.MentorActive)

	f.store.healthErr = errors.New("locked")
	w = f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Contains(t, resp.Database, "locked")
}

func TestWebSocketRoutes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodGet, "/ws/lobby/c1").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodGet, "/ws/42/c2").Code)

	assert.Equal(t, []string{"c1"}, f.sockets.lobby)
	assert.Equal(t, [][2]string{{"42", "c2"}}, f.sockets.rooms)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/code-blocks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/code-blocks")

	w := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `codeblocks_http_requests_total{method="GET",route="/code-blocks",status="200"} 1`)
}
