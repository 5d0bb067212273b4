package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/floorlink/floorlink/message"
	"github.com/floorlink/floorlink/pkg/pqueue"
)

// Conn is one accepted client session. It has exclusive ownership of the
// underlying WebSocket; no other component writes to the socket directly.
// All outbound traffic goes through the priority queue and the write pump.
type Conn struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	ws           *websocket.Conn
	queue        *pqueue.Queue[*message.Envelope]
	writeTimeout time.Duration

	lastActivity atomic.Int64 // unix nanos
	errorCount   atomic.Int32 // consecutive send failures
	sent         atomic.Int64
	dropped      atomic.Int64

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// newConn wires a connection around an accepted WebSocket. The queue is
// bounded; overflow drops the lowest-priority pending message first and
// counts it, both here and through the optional onDrop hook.
func newConn(id, userID string, ws *websocket.Conn, queueCapacity int, writeTimeout time.Duration, onDrop func()) (*Conn, error) {
	c := &Conn{
		ID:           id,
		UserID:       userID,
		CreatedAt:    time.Now(),
		ws:           ws,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	c.Touch()

	queue, err := pqueue.New[*message.Envelope](message.NumPriorities, queueCapacity,
		func(e *message.Envelope) int { return int(e.Priority) },
		pqueue.WithDropCallback[*message.Envelope](func(*message.Envelope) {
			c.dropped.Add(1)
			if onDrop != nil {
				onDrop()
			}
		}))
	if err != nil {
		return nil, err
	}
	c.queue = queue
	return c, nil
}

// Touch refreshes the last-activity timestamp
func (c *Conn) Touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the most recent send, receive or pong
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// ErrorCount returns the current consecutive send failure count
func (c *Conn) ErrorCount() int {
	return int(c.errorCount.Load())
}

// Sent returns the number of messages delivered to the socket
func (c *Conn) Sent() int64 {
	return c.sent.Load()
}

// Dropped returns the number of messages dropped by the queue bound
func (c *Conn) Dropped() int64 {
	return c.dropped.Load()
}

// QueueDepth returns the number of pending outbound messages
func (c *Conn) QueueDepth() int {
	return c.queue.Len()
}

// enqueue places an envelope on the outbound queue. Returns false if the
// connection is closed.
func (c *Conn) enqueue(env *message.Envelope) bool {
	if c.closed.Load() {
		return false
	}
	return c.queue.Push(env) == nil
}

// close shuts the connection down exactly once: the queue stops accepting,
// the write pump is released, and the socket is closed with the supplied
// close frame.
func (c *Conn) close(closeCode int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.queue.Close()
		close(c.done)

		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCode, reason), deadline)
		_ = c.ws.Close()
	})
}

// writePump drains the outbound queue to the socket, strictly by priority
// then FIFO. It runs as one goroutine per connection and is the only
// writer of data frames on the socket. Write failures are reported to the
// hub, which owns the eviction policy.
func (c *Conn) writePump(h *Hub) {
	for {
		select {
		case <-c.queue.Ready():
			for {
				env, ok := c.queue.Pop()
				if !ok {
					break
				}
				if err := c.writeEnvelope(env); err != nil {
					h.reportSendFailure(c, err)
					// Keep draining; the hub evicts past the threshold
					// and eviction closes the queue.
					continue
				}
				h.reportSendSuccess(c, env)
			}
			if c.queue.Closed() {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeEnvelope(env *message.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Done is closed when the connection has been torn down
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Ping sends a protocol-level ping control frame
func (c *Conn) Ping() error {
	deadline := time.Now().Add(c.writeTimeout)
	return c.ws.WriteControl(websocket.PingMessage, nil, deadline)
}
