package integration

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/app"
	"github.com/idoggk/moveo/internal/config"
	"github.com/idoggk/moveo/pkg/types"
)

// testServer is a full application listening on a loopback port.
type testServer struct {
	httpURL string
	wsURL   string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "codeblocks.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.WebSocket.ReadTimeout = 5 * time.Second
	cfg.WebSocket.PingInterval = time.Second

	application, err := app.NewApplication(cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	addr := ln.Addr().String()
	return &testServer{httpURL: "http://" + addr, wsURL: "ws://" + addr}
}

func (s *testServer) getJSON(t *testing.T, path string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(s.httpURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (s *testServer) assignRole(t *testing.T, clientID string) types.Role {
	t.Helper()
	var resp struct {
		Role types.Role `json:"role"`
	}
	require.Equal(t, http.StatusOK, s.getJSON(t, "/assign-role/"+clientID, &resp))
	return resp.Role
}

func (s *testServer) mentorActive(t *testing.T) bool {
	t.Helper()
	var health struct {
		Stats struct {
			MentorActive bool `json:"mentor_active"`
		} `json:"stats"`
	}
	s.getJSON(t, "/health", &health)
	return health.Stats.MentorActive
}

// client is one browser tab's websocket.
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dial(t *testing.T, path string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (s *testServer) joinRoom(t *testing.T, roomID, clientID string) *client {
	t.Helper()
	return s.dial(t, "/ws/"+roomID+"/"+clientID)
}

// expect reads the next message and requires its type.
func (c *client) expect(msgType string) map[string]interface{} {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]interface{}
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	require.Equal(c.t, msgType, msg["type"], "unexpected message %v", msg)
	return msg
}

// expectClosed requires the server to close the socket without sending
// anything else first.
func (c *client) expectClosed() error {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected message %s", data)
	return err
}

// expectSilence requires that nothing arrives within a short window. A timed
// out read leaves the connection unusable, so call it last.
func (c *client) expectSilence() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected message %s", data)
	require.True(c.t, isTimeout(err), "expected read timeout, got %v", err)
}

func (c *client) send(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
