package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

// SocketHandler serves the websocket endpoints. The api package only mounts
// it; upgrade and session handling live in the websocket package.
type SocketHandler interface {
	HandleLobby(w http.ResponseWriter, r *http.Request)
	HandleRoom(w http.ResponseWriter, r *http.Request)
}

// Stats is the registry summary reported by /health.
type Stats struct {
	Rooms              int  `json:"rooms"`
	RoomConnections    int  `json:"room_connections"`
	LobbyConnections   int  `json:"lobby_connections"`
	AssignedIdentities int  `json:"assigned_identities"`
	MentorActive       bool `json:"mentor_active"`
}

// StatsFunc collects a Stats snapshot on demand.
type StatsFunc func() Stats

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration // per REST request, 0 disables
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// No business logic here, only HTTP handling and JSON serialization
type Server struct {
	blocks  interfaces.BlockStore
	roles   interfaces.RoleAssigner
	sockets SocketHandler
	stats   StatsFunc
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	router  chi.Router
}

func NewServer(
	blocks interfaces.BlockStore,
	roles interfaces.RoleAssigner,
	sockets SocketHandler,
	stats StatsFunc,
	opts Options,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		blocks:  blocks,
		roles:   roles,
		sockets: sockets,
		stats:   stats,
		opts:    opts,
		logger:  logger.Named("api"),
		metrics: m,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		s.logRequests,
		middleware.Recoverer,
		s.metrics.Middleware,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         86400,
	}))

	r.Group(func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.opts.RequestTimeout))
		}
		r.Get("/code-blocks", s.listBlocks)
		r.Get("/code-blocks/{id}", s.getBlock)
		r.Get("/assign-role/{clientId}", s.assignRole)
		r.Get("/my-role/{clientId}", s.myRole)
		r.Get("/health", s.healthCheck)
	})

	r.Handle("/metrics", s.metrics.Handler())

	// chi matches the static "lobby" segment before {roomId}
	if s.sockets != nil {
		r.Get("/ws/lobby/{clientId}", s.sockets.HandleLobby)
		r.Get("/ws/{roomId}/{clientId}", s.sockets.HandleRoom)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response types for JSON serialization
type ListBlocksResponse struct {
	CodeBlocks []*types.CodeBlock `json:"code_blocks"`
}

type RoleResponse struct {
	Role types.Role `json:"role"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Stats     Stats     `json:"stats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// GET /code-blocks
func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.blocks.ListBlocks(r.Context())
	if err != nil {
		s.logger.Error("list code blocks", zap.Error(err))
		s.sendError(w, "Failed to list code blocks", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, ListBlocksResponse{CodeBlocks: blocks})
}

// GET /code-blocks/{id}
func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.blocks.GetBlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrBlockNotFound) {
			s.sendError(w, "Code block not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get code block", zap.String("id", chi.URLParam(r, "id")), zap.Error(err))
		s.sendError(w, "Failed to get code block", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, block)
}

// GET /assign-role/{clientId}
func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.roles.AssignRole(chi.URLParam(r, "clientId"))
	if err != nil {
		if errors.Is(err, types.ErrInvalidClientID) {
			s.sendError(w, "Invalid client id", http.StatusBadRequest)
			return
		}
		s.sendError(w, "Failed to assign role", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, RoleResponse{Role: role})
}

// GET /my-role/{clientId}
func (s *Server) myRole(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	if !types.IsValidClientID(clientID) {
		s.sendError(w, "Invalid client id", http.StatusBadRequest)
		return
	}

	role, err := s.roles.LookupRole(clientID)
	if err != nil {
		if errors.Is(err, interfaces.ErrIdentityNotFound) {
			s.sendError(w, "Role not assigned", http.StatusNotFound)
			return
		}
		s.sendError(w, "Failed to look up role", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, RoleResponse{Role: role})
}

// FUNCTIONAL DISCOVERY: GET /health reports 503 when the catalog is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "healthy",
	}
	if err := s.blocks.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "error: " + err.Error()
	}
	if s.stats != nil {
		resp.Stats = s.stats()
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{Error: message})
}
