package hub

import (
	"log/slog"
	"time"

	"github.com/floorlink/floorlink/message"
)

// Dispatcher delivers outbound envelopes to one connection or a computed
// set. It never blocks on network I/O: a send is an enqueue onto the
// target's priority queue, and the connection's write pump drains it.
type Dispatcher struct {
	hub    *Hub
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the hub's registry
func NewDispatcher(h *Hub) *Dispatcher {
	return &Dispatcher{
		hub:    h,
		logger: h.logger.With("component", "dispatcher"),
	}
}

// SendPersonal enqueues an envelope for a single connection, stamping the
// server time. If the connection no longer exists the call is a silent
// no-op: callers broadcast to potentially-stale sets and a vanished
// target is not an error.
func (d *Dispatcher) SendPersonal(connID string, env *message.Envelope) {
	d.stamp(env)
	d.deliver(connID, env)
}

// SendToSet enqueues an envelope for every connection in the set. The
// envelope is stamped once and shared read-only across targets; a failure
// on one target never aborts delivery to the rest.
func (d *Dispatcher) SendToSet(connIDs map[string]struct{}, env *message.Envelope) {
	d.stamp(env)
	for connID := range connIDs {
		d.deliver(connID, env)
	}
}

// SendToAll enqueues an envelope for every registered connection,
// regardless of subscriptions
func (d *Dispatcher) SendToAll(env *message.Envelope) {
	d.stamp(env)
	for _, conn := range d.hub.registry.List() {
		d.enqueue(conn, env)
	}
}

func (d *Dispatcher) stamp(env *message.Envelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
}

func (d *Dispatcher) deliver(connID string, env *message.Envelope) {
	conn := d.hub.registry.Get(connID)
	if conn == nil {
		return
	}
	d.enqueue(conn, env)
}

func (d *Dispatcher) enqueue(conn *Conn, env *message.Envelope) {
	if !conn.enqueue(env) {
		d.logger.Debug("enqueue on closed connection skipped",
			"connection_id", conn.ID, "type", env.Type)
	}
}
