// Package natsclient wraps the NATS connection used by the event ingest
// bridge: connect with retry policy, subscribe, drain.
package natsclient

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/floorlink/floorlink/errors"
)

// Options configures the NATS connection
type Options struct {
	// URLs are the server addresses, tried in order
	URLs []string
	// Name identifies this client to the server
	Name string
	// MaxReconnects bounds reconnect attempts; negative means unlimited
	MaxReconnects int
	// ReconnectWait is the pause between reconnect attempts
	ReconnectWait time.Duration
	// Logger is the parent logger; nil disables logging
	Logger *slog.Logger
}

// Client is a connected NATS client
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect establishes the connection. Reconnects are handled by the NATS
// client; state transitions are logged.
func Connect(opts Options) (*Client, error) {
	if len(opts.URLs) == 0 {
		return nil, errors.WrapInternal(errors.ErrMissingConfig,
			"natsclient", "Connect", "no server urls")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "natsclient")

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(strings.Join(opts.URLs, ","), natsOpts...)
	if err != nil {
		return nil, errors.WrapInternal(err, "natsclient", "Connect", "connect")
	}
	logger.Info("nats connected", "url", conn.ConnectedUrl())

	return &Client{conn: conn, logger: logger}, nil
}

// Subscribe registers a handler for a subject
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapInternal(err, "natsclient", "Subscribe", "subscribe "+subject)
	}
	return sub, nil
}

// Status returns the connection status
func (c *Client) Status() nats.Status {
	return c.conn.Status()
}

// Close drains in-flight messages and closes the connection
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
	}
}
