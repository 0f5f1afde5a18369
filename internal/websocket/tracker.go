package websocket

import (
	"sync"

	"github.com/idoggk/moveo/pkg/interfaces"
)

// Tracker holds every open connection by connection ID. Removal happens
// exactly once per connection, which makes the disconnect path idempotent.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]interfaces.Connection
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]interfaces.Connection)}
}

// Add registers conn under its ID.
func (t *Tracker) Add(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.conns[conn.GetID()]; exists {
		return ErrDuplicateConnection
	}
	t.conns[conn.GetID()] = conn
	return nil
}

// Remove reports whether conn was tracked. Only the first call for a given
// connection returns true.
func (t *Tracker) Remove(conn interfaces.Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.conns[conn.GetID()]; ok && current == conn {
		delete(t.conns, conn.GetID())
		return true
	}
	return false
}

// Snapshot returns the tracked connections in no particular order.
func (t *Tracker) Snapshot() []interfaces.Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]interfaces.Connection, 0, len(t.conns))
	for _, conn := range t.conns {
		out = append(out, conn)
	}
	return out
}

// Count returns the number of tracked connections.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
