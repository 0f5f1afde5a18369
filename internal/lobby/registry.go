package lobby

import (
	"sync"

	"go.uber.org/zap"

	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// Registry holds the one current lobby connection per client identity.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]interfaces.Connection

	onUnreachable func(conn interfaces.Connection, err error)
	logger        *zap.Logger
}

// NewRegistry creates an empty lobby. onUnreachable may be nil; see
// room.Options for its contract.
func NewRegistry(onUnreachable func(interfaces.Connection, error), logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:         make(map[string]interfaces.Connection),
		onUnreachable: onUnreachable,
		logger:        logger.Named("lobby"),
	}
}

// Join registers conn for its identity. A previous lobby connection of the
// same identity is forgotten but left open; its own close path cleans it up.
func (r *Registry) Join(conn interfaces.Connection) {
	r.mu.Lock()
	previous, replaced := r.conns[conn.GetClientID()]
	r.conns[conn.GetClientID()] = conn
	r.mu.Unlock()

	if replaced && previous != conn {
		r.logger.Debug("lobby connection superseded",
			zap.String("client_id", conn.GetClientID()),
			zap.String("old_conn_id", previous.GetID()),
			zap.String("conn_id", conn.GetID()))
	}
}

// Leave removes conn only if it is still the registered lobby connection
// for its identity.
func (r *Registry) Leave(conn interfaces.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[conn.GetClientID()]; ok && current == conn {
		delete(r.conns, conn.GetClientID())
		return true
	}
	return false
}

// RedirectOthers sends every waiting student a redirect to roomID. Only a
// mentor may redirect; the sender itself is skipped. It returns how many
// students were notified.
func (r *Registry) RedirectOthers(from interfaces.Connection, roomID string) int {
	if from.GetRole() != types.RoleMentor {
		return 0
	}

	r.mu.RLock()
	targets := make([]interfaces.Connection, 0, len(r.conns))
	for clientID, conn := range r.conns {
		if clientID == from.GetClientID() || conn.GetRole() != types.RoleStudent {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	msg := types.NewRedirect(roomID)
	sent := 0
	for _, conn := range targets {
		if err := conn.WriteJSON(msg); err != nil {
			r.logger.Warn("peer unreachable",
				zap.String("conn_id", conn.GetID()),
				zap.String("client_id", conn.GetClientID()),
				zap.Error(err))
			if r.onUnreachable != nil {
				r.onUnreachable(conn, err)
			}
			continue
		}
		sent++
	}

	r.logger.Info("lobby redirected",
		zap.String("client_id", from.GetClientID()),
		zap.String("room_id", roomID),
		zap.Int("notified", sent))
	return sent
}

// Count returns the number of registered lobby connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
