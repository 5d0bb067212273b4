// Package hub implements the real-time core of FloorLink: the connection
// registry, the subscription index, priority-aware message dispatch, the
// event broadcaster and connection-health supervision.
//
// One Hub instance is constructed at process startup and shared by
// reference with the gateway, the broadcaster's callers and the
// observability API. There is no package-level state.
package hub

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/floorlink/floorlink/message"
	"github.com/floorlink/floorlink/metric"
)

// Options configures hub behavior
type Options struct {
	// QueueCapacity bounds each connection's outbound queue
	QueueCapacity int
	// ErrorThreshold is the number of consecutive send failures after
	// which a connection is evicted
	ErrorThreshold int
	// WriteTimeout bounds each socket write
	WriteTimeout time.Duration
	// Logger is the parent logger; nil disables logging
	Logger *slog.Logger
	// Metrics is the shared registry; nil disables metrics
	Metrics *metric.MetricsRegistry
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.QueueCapacity <= 0 {
		out.QueueCapacity = 256
	}
	if out.ErrorThreshold <= 0 {
		out.ErrorThreshold = 3
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}

// Hub owns the registry and the subscription index and coordinates every
// mutation of shared connection state. Removal is the one place where the
// cascade happens: registry, index and monitor state all go in one call.
type Hub struct {
	opts     Options
	registry *Registry
	index    *SubscriptionIndex
	logger   *slog.Logger
	metrics  *hubMetrics
}

// New constructs a hub
func New(opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:     opts,
		registry: NewRegistry(),
		index:    NewSubscriptionIndex(),
		logger:   opts.Logger.With("component", "hub"),
		metrics:  newHubMetrics(opts.Metrics),
	}
}

// Registry exposes read access to the connection registry
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Index exposes the subscription index
func (h *Hub) Index() *SubscriptionIndex {
	return h.index
}

// NewConnID generates an opaque connection identifier
func NewConnID() string {
	return uuid.NewString()
}

// Attach creates a connection around an accepted WebSocket and registers
// it. Exactly one connection is created per successful call.
func (h *Hub) Attach(id, userID string, ws *websocket.Conn) (*Conn, error) {
	// Queue drops are counted per connection and aggregated by the hub
	// metrics; per-connection metric labels would be unbounded.
	conn, err := newConn(id, userID, ws, h.opts.QueueCapacity, h.opts.WriteTimeout, h.metrics.messageDropped)
	if err != nil {
		return nil, err
	}
	if err := h.registry.Add(conn); err != nil {
		return nil, err
	}

	h.metrics.connectionOpened(h.registry.Len())
	h.logger.Info("connection registered",
		"connection_id", id, "user_id", userID, "connections", h.registry.Len())
	return conn, nil
}

// Remove tears a connection down: registry delete, subscription cascade,
// socket close. Idempotent: removing an id that is not present is a no-op,
// which absorbs concurrent double-eviction from the health monitor and a
// client-initiated disconnect.
func (h *Hub) Remove(id, reason string) {
	h.removeWithCode(id, reason, websocket.CloseNormalClosure)
}

func (h *Hub) removeWithCode(id, reason string, closeCode int) {
	conn := h.registry.remove(id)
	if conn == nil {
		return
	}
	h.index.RemoveConnection(id)
	conn.close(closeCode, reason)

	h.metrics.connectionClosed(reason, h.registry.Len())
	h.logger.Info("connection removed",
		"connection_id", id, "reason", reason,
		"sent", conn.Sent(), "dropped", conn.Dropped(),
		"connections", h.registry.Len())
}

// reportSendFailure is called by a connection's write pump on a transport
// write failure. Past the threshold of consecutive failures the hub evicts
// the connection.
func (h *Hub) reportSendFailure(c *Conn, err error) {
	failures := c.errorCount.Add(1)
	h.metrics.sendFailed()
	h.logger.Warn("send failed",
		"connection_id", c.ID, "consecutive_failures", failures, "error", err)

	if int(failures) >= h.opts.ErrorThreshold {
		h.Remove(c.ID, "error threshold exceeded")
	}
}

// reportSendSuccess resets the consecutive failure counter and records
// delivery
func (h *Hub) reportSendSuccess(c *Conn, env *message.Envelope) {
	c.errorCount.Store(0)
	c.sent.Add(1)
	c.Touch()
	h.metrics.messageSent(env.Type)
}

// StartWritePump launches the connection's writer goroutine. Called by
// the gateway once the connection is established.
func (h *Hub) StartWritePump(c *Conn) {
	go c.writePump(h)
}

// CloseAll evicts every connection with a going-away close frame, used on
// shutdown
func (h *Hub) CloseAll(reason string) {
	for _, id := range h.registry.IDs() {
		h.removeWithCode(id, reason, websocket.CloseGoingAway)
	}
}
