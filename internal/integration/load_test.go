package integration

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idoggk/moveo/pkg/types"
)

// TestLoad_ConcurrentJoinsGrantOneEditor joins many students to one room at
// once and checks that exactly one of them was handed the editor token.
func TestLoad_ConcurrentJoinsGrantOneEditor(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}

	const students = 25
	s := startServer(t)
	s.assignRole(t, "mentor")

	ids := make([]string, students)
	for i := range ids {
		ids[i] = fmt.Sprintf("student-%02d", i)
		require.Equal(t, types.RoleStudent, s.assignRole(t, ids[i]))
	}

	var (
		wg       sync.WaitGroup
		editors  atomic.Int32
		failures atomic.Int32
		mu       sync.Mutex
		conns    []*websocket.Conn
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(s.wsURL+"/ws/load/"+id, nil)
			if err != nil {
				failures.Add(1)
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()

			var msg types.RoleState
			if err := conn.ReadJSON(&msg); err != nil || msg.Type != types.MessageTypeRole {
				failures.Add(1)
				return
			}
			if msg.CanEdit {
				editors.Add(1)
			}
		}(id)
	}
	wg.Wait()
	t.Cleanup(func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	assert.Zero(t, failures.Load())
	assert.Equal(t, int32(1), editors.Load())

	var health struct {
		Stats struct {
			Rooms           int `json:"rooms"`
			RoomConnections int `json:"room_connections"`
		} `json:"stats"`
	}
	s.getJSON(t, "/health", &health)
	assert.Equal(t, 1, health.Stats.Rooms)
	assert.Equal(t, students, health.Stats.RoomConnections)
}
