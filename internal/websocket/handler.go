package websocket

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/identity"
	"github.com/idoggk/moveo/internal/lobby"
	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/internal/room"
	"github.com/idoggk/moveo/internal/router"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// Disconnect reasons
const (
	ReasonClosed     = "closed"
	ReasonJoinFailed = "join_failed"
	ReasonShutdown   = "shutdown"
)

const (
	closeTextNoRole   = "identity not found"
	handshakeDeadline = 10 * time.Second
	scopeLabelLobby   = "lobby"
	scopeLabelRoom    = "room"
)

// HandlerOptions configures liveness and limits for accepted connections.
type HandlerOptions struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	MaxMessageBytes int64
	SendBuffer      int
	AllowedOrigins  []string // "*" allows any origin
}

// Handler accepts lobby and room connections and drives them until close.
type Handler struct {
	identities *identity.Registry
	rooms      *room.Registry
	lobby      *lobby.Registry
	router     *router.Router
	tracker    *Tracker

	upgrader websocket.Upgrader
	opts     HandlerOptions
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewHandler(
	identities *identity.Registry,
	rooms *room.Registry,
	waiting *lobby.Registry,
	msgRouter *router.Router,
	opts HandlerOptions,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.ReadTimeout {
		opts.PingInterval = opts.ReadTimeout * 9 / 10
	}

	h := &Handler{
		identities: identities,
		rooms:      rooms,
		lobby:      waiting,
		router:     msgRouter,
		tracker:    NewTracker(),
		opts:       opts,
		logger:     logger.Named("websocket"),
		metrics:    m,
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: handshakeDeadline,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// HandleLobby serves /ws/lobby/{clientId}.
func (h *Handler) HandleLobby(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "clientId"), types.LobbyScope())
}

// HandleRoom serves /ws/{roomId}/{clientId}.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	if !types.IsValidRoomID(roomID) {
		h.metrics.ConnectionRejected("invalid_room_id")
		http.Error(w, "Invalid room id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, chi.URLParam(r, "clientId"), types.RoomScope(roomID))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, clientID string, scope types.Scope) {
	if !types.IsValidClientID(clientID) {
		h.metrics.ConnectionRejected("invalid_client_id")
		http.Error(w, "Invalid client id", http.StatusBadRequest)
		return
	}

	log := h.logger.With(zap.String("client_id", clientID), zap.Stringer("scope", scope))

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	role, err := h.identities.LookupRole(clientID)
	if err != nil {
		h.metrics.ConnectionRejected("identity_not_found")
		log.Info("rejecting connection", zap.Error(err))
		reject(ws, websocket.ClosePolicyViolation, closeTextNoRole)
		return
	}

	if h.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(h.opts.MaxMessageBytes)
	}

	conn := NewConnection(ws, clientID, role, scope, ConnectionOptions{
		SendBuffer:   h.opts.SendBuffer,
		WriteTimeout: h.opts.WriteTimeout,
		PingInterval: h.opts.PingInterval,
	})
	log = log.With(zap.String("conn_id", conn.GetID()), zap.Stringer("role", role))

	if err := h.tracker.Add(conn); err != nil {
		log.Error("tracking connection", zap.Error(err))
		_ = conn.Close()
		return
	}
	h.identities.Attach(clientID)
	h.metrics.ConnectionOpened(scopeLabel(scope))
	log.Info("connection opened")

	if scope.Lobby {
		h.lobby.Join(conn)
	} else if _, err := h.rooms.Join(scope.RoomID, conn); err != nil {
		log.Warn("room join failed", zap.Error(err))
		h.Disconnect(conn, ReasonJoinFailed)
		return
	}

	go h.readPump(conn, log)
}

// readPump reads frames until the transport closes, then runs the leave path.
func (h *Handler) readPump(conn *Connection, log *zap.Logger) {
	defer h.Disconnect(conn, ReasonClosed)

	ws := conn.conn
	extend := func() error {
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	}
	if err := extend(); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := h.router.RouteMessage(conn.ctx, conn, data); err != nil {
			if errors.Is(err, router.ErrUnauthorizedAction) {
				log.Debug("ignored message", zap.Error(err))
			} else {
				log.Warn("dropped message", zap.Error(err))
			}
		}
	}
}

// Disconnect closes conn and runs its scope's leave path. Only the first call
// for a connection has any effect.
func (h *Handler) Disconnect(conn interfaces.Connection, reason string) {
	if !h.tracker.Remove(conn) {
		return
	}

	_ = conn.Close()

	scope := conn.GetScope()
	if scope.Lobby {
		h.lobby.Leave(conn)
	} else {
		h.rooms.Leave(scope.RoomID, conn)
	}
	h.router.Forget(conn.GetID())
	released := h.identities.Detach(conn.GetClientID())
	h.metrics.ConnectionClosed(scopeLabel(scope))

	h.logger.Info("connection closed",
		zap.String("client_id", conn.GetClientID()),
		zap.Stringer("scope", scope),
		zap.String("conn_id", conn.GetID()),
		zap.String("reason", reason),
		zap.Bool("mentor_released", released))
}

// CloseAll disconnects every open connection.
func (h *Handler) CloseAll() {
	for _, conn := range h.tracker.Snapshot() {
		h.Disconnect(conn, ReasonShutdown)
	}
}

// ConnectionCount returns the number of open connections in every scope.
func (h *Handler) ConnectionCount() int {
	return h.tracker.Count()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}

// reject closes a socket that never became a Connection.
func reject(ws *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}

func scopeLabel(scope types.Scope) string {
	if scope.Lobby {
		return scopeLabelLobby
	}
	return scopeLabelRoom
}
