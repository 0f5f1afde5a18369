package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/idoggk/moveo/internal/api"
	"github.com/idoggk/moveo/internal/config"
	"github.com/idoggk/moveo/internal/database"
	"github.com/idoggk/moveo/internal/hub"
	"github.com/idoggk/moveo/internal/identity"
	"github.com/idoggk/moveo/internal/lobby"
	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/internal/room"
	"github.com/idoggk/moveo/internal/router"
	"github.com/idoggk/moveo/internal/websocket"
	"github.com/idoggk/moveo/pkg/interfaces"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	store      *database.Store
	identities *identity.Registry
	rooms      *room.Registry
	lobby      *lobby.Registry
	evictions  *hub.Hub
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server

	stopOnce sync.Once
	stopErr  error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Metrics → Registries → Router → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Open and seed the code-block catalog
	store, err := database.Open(cfg.Database.StoreConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open code-block store: %w", err)
	}

	seedCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	seeded, err := store.SeedDefaults(seedCtx, database.DefaultBlocks())
	cancel()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed code blocks: %w", err)
	}
	if seeded > 0 {
		logger.Info("seeded code-block catalog", zap.Int("blocks", seeded))
	}

	// STEP 2: Metrics on a private registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a := &Application{
		config: cfg,
		logger: logger,
		store:  store,
	}

	// STEP 3: Eviction hub. Its disconnect callback needs the websocket
	// handler, which is built below.
	a.evictions = hub.NewHub(func(conn interfaces.Connection, reason string) {
		a.wsHandler.Disconnect(conn, reason)
	}, logger, m)

	// STEP 4: Session registries
	a.identities = identity.NewRegistry(logger, m)
	a.rooms = room.NewRegistry(room.Options{
		Policy:        cfg.Room.Policy(),
		OnUnreachable: a.evictions.OnUnreachable,
	}, logger, m)
	a.lobby = lobby.NewRegistry(a.evictions.OnUnreachable, logger)

	// STEP 5: Message router with per-connection rate limiting
	limiter := router.NewRateLimiter(cfg.WebSocket.MessageRate, cfg.WebSocket.MessageBurst)
	msgRouter := router.NewRouter(a.rooms, a.lobby, limiter, logger, m)

	// STEP 6: WebSocket handler
	a.wsHandler = websocket.NewHandler(a.identities, a.rooms, a.lobby, msgRouter, websocket.HandlerOptions{
		ReadTimeout:     cfg.WebSocket.ReadTimeout,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PingInterval:    cfg.WebSocket.PingInterval,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}, logger, m)

	// STEP 7: REST, health, metrics and websocket routes
	a.apiServer = api.NewServer(store, a.identities, a.wsHandler, a.stats, api.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.Database.Timeout,
	}, logger, m)

	a.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      a.apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return a, nil
}

// Run listens on the configured address and serves until ctx ends.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ctx, ln)
}

// Serve runs the hub and the HTTP server on ln until ctx ends or the server
// fails, then shuts everything down.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	if err := app.evictions.Start(context.WithoutCancel(ctx)); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start eviction hub: %w", err)
	}
	app.logger.Info("code-block server listening", zap.String("addr", ln.Addr().String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.ShutdownTimeout)
		defer cancel()
		return app.Stop(shutdownCtx)
	})
	return g.Wait()
}

// Stop gracefully shuts down the application. Safe to call more than once.
// Reverse dependency order: HTTP → sockets → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	app.stopOnce.Do(func() {
		app.logger.Info("shutting down")
		var errs []error

		// STEP 1: Stop accepting new connections
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}

		// STEP 2: Close hijacked websocket connections, which Shutdown does not track
		app.wsHandler.CloseAll()

		// STEP 3: Stop the eviction loop
		if err := app.evictions.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
			errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
		}

		// STEP 4: Close database connections
		if err := app.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database shutdown: %w", err))
		}

		app.stopErr = errors.Join(errs...)
		app.logger.Info("shutdown complete")
	})
	return app.stopErr
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// GetAddr returns the configured listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}

func (app *Application) stats() api.Stats {
	rs := app.rooms.Stats()
	is := app.identities.Stats()
	return api.Stats{
		Rooms:              rs.Rooms,
		RoomConnections:    rs.Connections,
		LobbyConnections:   app.lobby.Count(),
		AssignedIdentities: is.AssignedIdentities,
		MentorActive:       is.MentorActive,
	}
}
