package hub

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// HealthState is the aggregate health classification of the hub
type HealthState string

// Aggregate health states, ordered by severity
const (
	HealthHealthy  HealthState = "healthy"
	HealthWarning  HealthState = "warning"
	HealthCritical HealthState = "critical"
)

// Stats is the aggregate snapshot served by the get_stats command and the
// observability API
type Stats struct {
	Connections     int               `json:"connections"`
	Subscriptions   int               `json:"subscriptions"`
	ByDimension     map[Dimension]int `json:"subscriptions_by_dimension"`
	QueuedMessages  int               `json:"queued_messages"`
	MessagesSent    int64             `json:"messages_sent"`
	MessagesDropped int64             `json:"messages_dropped"`
	Health          HealthState       `json:"health"`
	UnhealthyPct    float64           `json:"unhealthy_pct"`
	Goroutines      int               `json:"goroutines"`
	HeapBytes       uint64            `json:"heap_bytes"`
	Uptime          string            `json:"uptime"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// ConnectionDetail is the per-connection snapshot served by the
// get_connection_details command and the observability API
type ConnectionDetail struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"user_id"`
	CreatedAt     time.Time              `json:"created_at"`
	LastActivity  time.Time              `json:"last_activity"`
	Subscriptions map[Dimension][]string `json:"subscriptions"`
	QueueDepth    int                    `json:"queue_depth"`
	Sent          int64                  `json:"messages_sent"`
	Dropped       int64                  `json:"messages_dropped"`
	ErrorCount    int                    `json:"error_count"`
	Healthy       bool                   `json:"healthy"`
}

// MonitorOptions configures the health monitor
type MonitorOptions struct {
	// ScanInterval is the period between health scans
	ScanInterval time.Duration
	// StaleAfter is the inactivity span after which a connection is evicted
	StaleAfter time.Duration
	// WarningPct and CriticalPct are the unhealthy-connection percentages
	// at which the aggregate state degrades
	WarningPct  float64
	CriticalPct float64
}

func (o *MonitorOptions) withDefaults() MonitorOptions {
	out := *o
	if out.ScanInterval <= 0 {
		out.ScanInterval = 30 * time.Second
	}
	if out.StaleAfter <= 0 {
		out.StaleAfter = 5 * time.Minute
	}
	if out.WarningPct <= 0 {
		out.WarningPct = 10
	}
	if out.CriticalPct <= 0 {
		out.CriticalPct = 25
	}
	return out
}

// Monitor periodically scans the registry, evicts stale connections and
// maintains the aggregate health classification. One monitor runs per hub.
type Monitor struct {
	hub     *Hub
	opts    MonitorOptions
	logger  *slog.Logger
	started time.Time

	state atomic.Value // HealthState

	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor over the hub
func NewMonitor(h *Hub, opts MonitorOptions) *Monitor {
	m := &Monitor{
		hub:      h,
		opts:     opts.withDefaults(),
		logger:   h.logger.With("component", "monitor"),
		started:  time.Now(),
		shutdown: make(chan struct{}),
	}
	m.state.Store(HealthHealthy)
	return m
}

// Start launches the scan loop
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop terminates the scan loop and waits for it to exit
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.shutdown)
	})
	m.wg.Wait()
}

// run is the scan loop. A panic in one scan is logged and the loop
// restarts; supervision must not die with a single bad scan.
func (m *Monitor) run() {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor panic, restarting",
				"panic", r, "stack", string(debug.Stack()))
			m.wg.Add(1)
			go m.run()
		}
	}()

	ticker := time.NewTicker(m.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scan()
		case <-m.shutdown:
			return
		}
	}
}

// scan walks every connection once: evicts the stale, classifies the
// rest, and recomputes the aggregate state.
func (m *Monitor) scan() {
	now := time.Now()
	conns := m.hub.registry.List()

	var unhealthy int
	for _, conn := range conns {
		if now.Sub(conn.LastActivity()) > m.opts.StaleAfter {
			m.logger.Info("evicting stale connection",
				"connection_id", conn.ID, "last_activity", conn.LastActivity())
			m.hub.Remove(conn.ID, "stale")
			continue
		}
		if !m.connectionHealthy(conn) {
			unhealthy++
		}
	}

	state := m.classify(len(conns), unhealthy)
	prev := m.state.Swap(state).(HealthState)
	if state != prev {
		m.logger.Warn("health state changed",
			"from", prev, "to", state,
			"connections", len(conns), "unhealthy", unhealthy)
	}
}

// connectionHealthy reports whether a connection is currently keeping up:
// no pending send failures and headroom left in its outbound queue.
func (m *Monitor) connectionHealthy(conn *Conn) bool {
	if conn.ErrorCount() > 0 {
		return false
	}
	capacity := conn.queue.Capacity()
	if capacity > 0 && conn.QueueDepth()*10 >= capacity*8 {
		return false
	}
	return true
}

func (m *Monitor) classify(total, unhealthy int) HealthState {
	if total == 0 {
		return HealthHealthy
	}
	pct := float64(unhealthy) / float64(total) * 100
	switch {
	case pct >= m.opts.CriticalPct:
		return HealthCritical
	case pct >= m.opts.WarningPct:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// State returns the aggregate state computed by the most recent scan
func (m *Monitor) State() HealthState {
	return m.state.Load().(HealthState)
}

// StatsSnapshot builds the aggregate snapshot from live registry and
// index state
func (m *Monitor) StatsSnapshot() Stats {
	conns := m.hub.registry.List()

	var queued int
	var sent, dropped int64
	var unhealthy int
	for _, conn := range conns {
		queued += conn.QueueDepth()
		sent += conn.Sent()
		dropped += conn.Dropped()
		if !m.connectionHealthy(conn) {
			unhealthy++
		}
	}

	var pct float64
	if len(conns) > 0 {
		pct = float64(unhealthy) / float64(len(conns)) * 100
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Stats{
		Connections:     len(conns),
		Subscriptions:   m.hub.index.Total(),
		ByDimension:     m.hub.index.CountByDimension(),
		QueuedMessages:  queued,
		MessagesSent:    sent,
		MessagesDropped: dropped,
		Health:          m.classify(len(conns), unhealthy),
		UnhealthyPct:    pct,
		Goroutines:      runtime.NumGoroutine(),
		HeapBytes:       mem.HeapAlloc,
		Uptime:          time.Since(m.started).Round(time.Second).String(),
		GeneratedAt:     time.Now().UTC(),
	}
}

// ConnectionList builds the snapshot of every registered connection
func (m *Monitor) ConnectionList() []ConnectionDetail {
	conns := m.hub.registry.List()
	out := make([]ConnectionDetail, 0, len(conns))
	for _, conn := range conns {
		if detail, ok := m.ConnectionDetail(conn.ID); ok {
			out = append(out, detail)
		}
	}
	return out
}

// ConnectionDetail builds the per-connection snapshot. The second return
// is false when the connection is not registered.
func (m *Monitor) ConnectionDetail(connID string) (ConnectionDetail, bool) {
	conn := m.hub.registry.Get(connID)
	if conn == nil {
		return ConnectionDetail{}, false
	}
	return ConnectionDetail{
		ID:            conn.ID,
		UserID:        conn.UserID,
		CreatedAt:     conn.CreatedAt,
		LastActivity:  conn.LastActivity(),
		Subscriptions: m.hub.index.SubscriptionsOf(conn.ID),
		QueueDepth:    conn.QueueDepth(),
		Sent:          conn.Sent(),
		Dropped:       conn.Dropped(),
		ErrorCount:    conn.ErrorCount(),
		Healthy:       m.connectionHealthy(conn),
	}, true
}
