package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/lobby"
	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/internal/room"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// Router validates inbound frames and dispatches them to the registry that
// owns the sender's scope. It holds no state of its own besides rate limits.
type Router struct {
	rooms       *room.Registry
	lobby       *lobby.Registry
	rateLimiter *RateLimiter
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewRouter(rooms *room.Registry, waiting *lobby.Registry, limiter *RateLimiter, logger *zap.Logger, m *metrics.Metrics) *Router {
	if limiter == nil {
		limiter = NewRateLimiter(0, 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		rooms:       rooms,
		lobby:       waiting,
		rateLimiter: limiter,
		logger:      logger.Named("router"),
		metrics:     m,
	}
}

// RouteMessage handles one frame from conn. The returned error says why the
// frame was dropped; the caller logs it and keeps reading.
func (r *Router) RouteMessage(ctx context.Context, conn interfaces.Connection, raw []byte) error {
	msgType, err := r.route(ctx, conn, raw)
	r.metrics.MessageHandled(msgType, outcome(err))
	return err
}

func (r *Router) route(ctx context.Context, conn interfaces.Connection, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !r.rateLimiter.Allow(conn.GetID()) {
		return "", ErrRateLimited
	}

	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if !isKnownMessageType(env.Type) {
		return env.Type, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	scope := conn.GetScope()
	if !canSendMessageType(scope, conn.GetRole(), env.Type) {
		return env.Type, ErrUnauthorizedAction
	}

	switch env.Type {
	case types.MessageTypeCodeUpdate:
		var msg struct {
			Code *string `json:"code"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Code == nil {
			return env.Type, fmt.Errorf("%w: codeUpdate needs a string code", ErrMalformedMessage)
		}
		// relay a normalized copy so unknown client fields never reach peers
		if !r.rooms.RelayEdit(scope.RoomID, conn, types.NewCodeUpdate(*msg.Code)) {
			return env.Type, ErrUnauthorizedAction
		}

	case types.MessageTypeRequestEdit:
		if !r.rooms.RequestEdit(scope.RoomID, conn) {
			return env.Type, ErrUnauthorizedAction
		}

	case types.MessageTypeMentorLeaving:
		// the roomId field is advisory; the connection's own room is torn down
		if !r.rooms.MentorLeave(scope.RoomID, conn) {
			return env.Type, ErrUnauthorizedAction
		}
		if err := conn.Close(); err != nil {
			r.logger.Debug("closing departed mentor", zap.String("conn_id", conn.GetID()), zap.Error(err))
		}

	case types.MessageTypeMentorRedirect:
		var msg types.MentorRedirect
		if err := json.Unmarshal(raw, &msg); err != nil {
			return env.Type, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		target := msg.Target()
		if !types.IsValidRoomID(target) {
			return env.Type, fmt.Errorf("%w: invalid redirect target %q", ErrMalformedMessage, target)
		}
		r.lobby.RedirectOthers(conn, target)
	}

	return env.Type, nil
}

// Forget releases per-connection state once connID is closed.
func (r *Router) Forget(connID string) {
	r.rateLimiter.Forget(connID)
}

// canSendMessageType is the allow-list keyed by scope and role.
func canSendMessageType(scope types.Scope, role types.Role, messageType string) bool {
	if scope.Lobby {
		return role == types.RoleMentor && messageType == types.MessageTypeMentorRedirect
	}
	switch role {
	case types.RoleStudent:
		return messageType == types.MessageTypeCodeUpdate ||
			messageType == types.MessageTypeRequestEdit
	case types.RoleMentor:
		return messageType == types.MessageTypeMentorLeaving
	default:
		return false
	}
}

func isKnownMessageType(messageType string) bool {
	switch messageType {
	case types.MessageTypeCodeUpdate,
		types.MessageTypeRequestEdit,
		types.MessageTypeMentorLeaving,
		types.MessageTypeMentorRedirect:
		return true
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "routed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, ErrUnknownMessageType):
		return "unknown_type"
	case errors.Is(err, ErrUnauthorizedAction):
		return "unauthorized"
	default:
		return "error"
	}
}
