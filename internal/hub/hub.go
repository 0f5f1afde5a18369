package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/metrics"
	"github.com/idoggk/moveo/pkg/interfaces"
)

// ReasonPeerUnreachable labels evictions caused by a failed send.
const ReasonPeerUnreachable = "peer_unreachable"

// DisconnectFunc runs the full leave path for conn. It must be idempotent.
type DisconnectFunc func(conn interfaces.Connection, reason string)

// Hub runs evictions on a single goroutine so that registries can report an
// unreachable peer while holding their own locks.
type Hub struct {
	evictChannel    chan eviction
	shutdownChannel chan struct{}
	done            chan struct{}

	disconnect DisconnectFunc
	logger     *zap.Logger
	metrics    *metrics.Metrics

	running bool
	mu      sync.RWMutex
}

type eviction struct {
	conn   interfaces.Connection
	reason string
	err    error
}

func NewHub(disconnect DisconnectFunc, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		evictChannel:    make(chan eviction, 256),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		disconnect:      disconnect,
		logger:          logger.Named("hub"),
		metrics:         m,
	}
}

// Start launches the eviction loop. It stops on Stop or when ctx ends.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	go h.run(ctx)
	h.logger.Debug("hub started")
	return nil
}

// Stop ends the loop and waits for an in-flight eviction to finish.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.done
	h.logger.Debug("hub stopped")
	return nil
}

// Evict queues conn for disconnection. It never blocks; when the hub cannot
// take the request the caller should close conn itself.
func (h *Hub) Evict(conn interfaces.Connection, reason string, cause error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.evictChannel <- eviction{conn: conn, reason: reason, err: cause}:
		return nil
	default:
		return ErrEvictionQueueFull
	}
}

// OnUnreachable adapts Evict to the registries' send-failure hook, falling
// back to a direct close when the queue is unavailable.
func (h *Hub) OnUnreachable(conn interfaces.Connection, err error) {
	if evictErr := h.Evict(conn, ReasonPeerUnreachable, err); evictErr != nil {
		h.logger.Warn("eviction not queued, closing directly",
			zap.String("conn_id", conn.GetID()),
			zap.Error(evictErr))
		_ = conn.Close()
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case ev := <-h.evictChannel:
			h.metrics.Evicted(ev.reason)
			h.logger.Info("evicting connection",
				zap.String("conn_id", ev.conn.GetID()),
				zap.String("client_id", ev.conn.GetClientID()),
				zap.String("reason", ev.reason),
				zap.Error(ev.err))
			h.disconnect(ev.conn, ev.reason)

		case <-h.shutdownChannel:
			return

		case <-ctx.Done():
			return
		}
	}
}

// IsRunning reports whether Start has been called without a matching Stop.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
