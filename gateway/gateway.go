// Package gateway terminates WebSocket connections: it authenticates the
// handshake, registers the session with the hub, applies filter-derived
// default subscriptions, and runs the per-connection read loop.
package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/floorlink/floorlink/auth"
	"github.com/floorlink/floorlink/errors"
	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/message"
	"github.com/floorlink/floorlink/metric"
)

// CloseInvalidCredential is the application close code sent when the
// handshake token is rejected. Distinct from 1011 so clients can tell a
// bad credential from a server fault and stop retrying.
const CloseInvalidCredential = 4401

// Options configures the gateway
type Options struct {
	// WriteTimeout bounds each socket write, passed through to the hub
	WriteTimeout time.Duration
	// ReadTimeout is the read deadline; any inbound frame or pong resets it
	ReadTimeout time.Duration
	// PingInterval is the period of server-initiated protocol pings
	PingInterval time.Duration
	// MaxFrameSize bounds inbound frames in bytes
	MaxFrameSize int64
	// CommandRate and CommandBurst bound inbound commands per connection
	CommandRate  float64
	CommandBurst int
	// AuthTimeout bounds one credential verification
	AuthTimeout time.Duration
	// Logger is the parent logger; nil disables logging
	Logger *slog.Logger
	// Metrics is the shared registry; nil disables metrics
	Metrics *metric.MetricsRegistry
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 60 * time.Second
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.MaxFrameSize <= 0 {
		out.MaxFrameSize = 64 * 1024
	}
	if out.CommandRate <= 0 {
		out.CommandRate = 20
	}
	if out.CommandBurst <= 0 {
		out.CommandBurst = 40
	}
	if out.AuthTimeout <= 0 {
		out.AuthTimeout = 5 * time.Second
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return out
}

// Server is the WebSocket endpoint. It implements http.Handler and is
// mounted on the gateway listener's path.
type Server struct {
	hub        *hub.Hub
	dispatcher *hub.Dispatcher
	commands   *hub.CommandHandler
	verifier   auth.TokenVerifier
	opts       Options
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	metrics    *gatewayMetrics
	draining   atomic.Bool
}

// New constructs the gateway server
func New(h *hub.Hub, d *hub.Dispatcher, c *hub.CommandHandler, v auth.TokenVerifier, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		hub:        h,
		dispatcher: d,
		commands:   c,
		verifier:   v,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser dashboards connect from arbitrary origins; access
			// control is the token check, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  opts.Logger.With("component", "gateway"),
		metrics: newGatewayMetrics(opts.Metrics),
	}
}

// Drain stops accepting new connections. Established sessions keep
// running until the hub closes them.
func (s *Server) Drain() {
	s.draining.Store(true)
	s.logger.Info("gateway draining, new connections refused")
}

// ServeHTTP upgrades the request and runs the session to completion
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.metrics.upgradeFailed()
		return
	}

	userID, err := s.authenticate(r)
	if err != nil {
		s.rejectHandshake(ws, r, err)
		return
	}

	connID := hub.NewConnID()
	conn, err := s.hub.Attach(connID, userID, ws)
	if err != nil {
		s.logger.Error("attach failed", "connection_id", connID, "error", err)
		s.closeRaw(ws, websocket.CloseInternalServerErr, "internal error")
		return
	}
	s.metrics.connectionAccepted()

	subs := s.applyDefaultSubscriptions(connID, r)
	s.hub.StartWritePump(conn)

	s.dispatcher.SendPersonal(connID, message.New(message.TypeConnectionEstablished, establishedPayload{
		ConnectionID:  connID,
		UserID:        userID,
		Subscriptions: subs,
		ServerTime:    time.Now().UTC(),
	}))

	go s.pingLoop(conn)
	s.readLoop(conn, ws)
}

// establishedPayload is the first message on every connection
type establishedPayload struct {
	ConnectionID  string    `json:"connection_id"`
	UserID        string    `json:"user_id"`
	Subscriptions []string  `json:"subscriptions"`
	ServerTime    time.Time `json:"server_time"`
}

// authenticate extracts the credential from the handshake request and
// verifies it. The token travels as a query parameter or a bearer header.
func (s *Server) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return "", errors.WrapAuthentication(errors.ErrInvalidCredential,
			"gateway", "authenticate", "missing token")
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.AuthTimeout)
	defer cancel()
	return s.verifier.Verify(ctx, token)
}

// rejectHandshake closes a just-upgraded socket whose credential failed.
// Authentication failures get the dedicated close code; verifier faults
// are reported as internal so clients may retry.
func (s *Server) rejectHandshake(ws *websocket.Conn, r *http.Request, err error) {
	if errors.IsAuthentication(err) {
		s.logger.Warn("authentication rejected", "remote", r.RemoteAddr, "error", err)
		s.metrics.authRejected()
		s.closeRaw(ws, CloseInvalidCredential, "invalid credential")
		return
	}
	s.logger.Error("authentication errored", "remote", r.RemoteAddr, "error", err)
	s.closeRaw(ws, websocket.CloseInternalServerErr, "authentication unavailable")
}

func (s *Server) closeRaw(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

// applyDefaultSubscriptions registers the subscriptions implied by the
// handshake query filters, so a dashboard scoped to one line starts
// receiving that line's traffic without an explicit subscribe round trip.
func (s *Server) applyDefaultSubscriptions(connID string, r *http.Request) []string {
	q := r.URL.Query()
	var subs []string

	if lineID := q.Get("line_id"); lineID != "" {
		s.hub.Index().Subscribe(hub.DimLine, lineID, connID)
		s.hub.Index().Subscribe(hub.DimOEE, lineID, connID)
		s.hub.Index().Subscribe(hub.DimDowntime, hub.DowntimeKey(lineID, ""), connID)
		subs = append(subs, "line:"+lineID, "oee:"+lineID, "downtime:line:"+lineID)
	}
	if code := q.Get("equipment_code"); code != "" {
		s.hub.Index().Subscribe(hub.DimEquipment, code, connID)
		s.hub.Index().Subscribe(hub.DimDowntime, hub.DowntimeKey("", code), connID)
		subs = append(subs, "equipment:"+code, "downtime:equipment:"+code)
	}
	if level := q.Get("priority"); level != "" {
		level = strings.ToLower(level)
		s.hub.Index().Subscribe(hub.DimEscalation, hub.EscalationKey("", level), connID)
		subs = append(subs, "escalation:priority:"+level)
	}
	for _, name := range strings.Split(q.Get("subscriptions"), ",") {
		dim, ok := hub.ParseDimension(name)
		if !ok {
			continue
		}
		s.hub.Index().Subscribe(dim, hub.KeyAll, connID)
		subs = append(subs, string(dim)+":all")
	}
	return subs
}

// readLoop consumes inbound frames until the socket fails or closes. It
// is the only reader of the socket. Commands past the per-connection rate
// limit are answered with an error and discarded, not disconnected.
func (s *Server) readLoop(conn *hub.Conn, ws *websocket.Conn) {
	ws.SetReadLimit(s.opts.MaxFrameSize)
	resetDeadline := func() {
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	resetDeadline()
	ws.SetPongHandler(func(string) error {
		conn.Touch()
		resetDeadline()
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.opts.CommandRate), s.opts.CommandBurst)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			reason := "read error"
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = "client disconnect"
			}
			s.logger.Debug("read loop ended",
				"connection_id", conn.ID, "reason", reason, "error", err)
			s.hub.Remove(conn.ID, reason)
			return
		}
		resetDeadline()

		if !limiter.Allow() {
			s.metrics.commandThrottled()
			s.dispatcher.SendPersonal(conn.ID,
				message.NewError(message.CodeRateLimited, "command rate limit exceeded"))
			continue
		}
		s.commands.Handle(conn, data)
	}
}

// pingLoop sends protocol pings until the connection is torn down. A
// failed ping is left to the read deadline to surface; the write pump's
// failure accounting covers data frames only.
func (s *Server) pingLoop(conn *hub.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				s.logger.Debug("ping failed", "connection_id", conn.ID, "error", err)
				return
			}
		case <-conn.Done():
			return
		}
	}
}
