package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

var _ interfaces.Connection = (*Connection)(nil)

// ConnectionOptions tunes the writer side of a Connection.
type ConnectionOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

// Connection wraps one websocket with a single writer goroutine. The identity,
// role and scope are fixed at construction.
type Connection struct {
	conn    *websocket.Conn
	writeCh chan []byte
	opts    ConnectionOptions

	id       string
	clientID string
	role     types.Role
	scope    types.Scope

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection starts the writer for conn.
func NewConnection(conn *websocket.Conn, clientID string, role types.Role, scope types.Scope, opts ConnectionOptions) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		writeCh:  make(chan []byte, opts.SendBuffer),
		opts:     opts,
		id:       uuid.NewString(),
		clientID: clientID,
		role:     role,
		scope:    scope,
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine that writes data frames. Pings go out on
// the same goroutine so they never interleave with a message.
func (c *Connection) writeLoop() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v without blocking. A full buffer means the peer is not
// keeping up and is reported as ErrSendBufferFull.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close sends a normal close frame and tears the socket down. Queued messages
// that were not yet written are dropped.
func (c *Connection) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode is Close with an explicit close code and reason.
func (c *Connection) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) GetID() string         { return c.id }
func (c *Connection) GetClientID() string   { return c.clientID }
func (c *Connection) GetRole() types.Role   { return c.role }
func (c *Connection) GetScope() types.Scope { return c.scope }
