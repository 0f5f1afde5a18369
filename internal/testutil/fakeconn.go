// Package testutil holds in-memory doubles shared by registry tests.
package testutil

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/idoggk/moveo/pkg/types"
)

var ErrFakeClosed = errors.New("fake connection closed")

// FakeConn records every message written to it as raw JSON.
type FakeConn struct {
	ID       string
	ClientID string
	Role     types.Role
	Scope    types.Scope

	mu       sync.Mutex
	messages []json.RawMessage
	closed   bool
	failing  bool
}

func NewFakeConn(id, clientID string, role types.Role, scope types.Scope) *FakeConn {
	return &FakeConn{ID: id, ClientID: clientID, Role: role, Scope: scope}
}

func (c *FakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrFakeClosed
	}
	if c.failing {
		return errors.New("send buffer full")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.messages = append(c.messages, data)
	return nil
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *FakeConn) GetID() string         { return c.ID }
func (c *FakeConn) GetClientID() string   { return c.ClientID }
func (c *FakeConn) GetRole() types.Role   { return c.Role }
func (c *FakeConn) GetScope() types.Scope { return c.Scope }

// SetFailing makes every later WriteJSON return an error.
func (c *FakeConn) SetFailing(failing bool) {
	c.mu.Lock()
	c.failing = failing
	c.mu.Unlock()
}

func (c *FakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages returns a copy of everything written so far.
func (c *FakeConn) Messages() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]json.RawMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Types returns the "type" field of every message written so far.
func (c *FakeConn) Types() []string {
	var out []string
	for _, raw := range c.Messages() {
		var env types.Envelope
		_ = json.Unmarshal(raw, &env)
		out = append(out, env.Type)
	}
	return out
}

// Last decodes the most recent message of type msgType into v and reports
// whether one was found.
func (c *FakeConn) Last(msgType string, v interface{}) bool {
	msgs := c.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		var env types.Envelope
		if json.Unmarshal(msgs[i], &env) == nil && env.Type == msgType {
			return json.Unmarshal(msgs[i], v) == nil
		}
	}
	return false
}

// Count returns how many messages of msgType were written.
func (c *FakeConn) Count(msgType string) int {
	n := 0
	for _, t := range c.Types() {
		if t == msgType {
			n++
		}
	}
	return n
}

// Reset drops recorded messages.
func (c *FakeConn) Reset() {
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
}
