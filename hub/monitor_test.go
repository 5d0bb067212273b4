package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/message"
)

func pongEnvelope() *message.Envelope {
	return message.New(message.TypePong, nil)
}

func TestClassifyThresholds(t *testing.T) {
	m := NewMonitor(newTestHub(t), MonitorOptions{WarningPct: 10, CriticalPct: 25})

	tests := []struct {
		total     int
		unhealthy int
		want      HealthState
	}{
		{0, 0, HealthHealthy},
		{100, 0, HealthHealthy},
		{100, 9, HealthHealthy},
		{100, 10, HealthWarning},
		{100, 24, HealthWarning},
		{100, 25, HealthCritical},
		{4, 1, HealthCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.classify(tt.total, tt.unhealthy),
			"total=%d unhealthy=%d", tt.total, tt.unhealthy)
	}
}

func TestConnectionHealthy(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{})
	conn := quietConn(t, h, "c1")

	assert.True(t, m.connectionHealthy(conn))

	conn.errorCount.Store(1)
	assert.False(t, m.connectionHealthy(conn), "pending send failures mark unhealthy")
	conn.errorCount.Store(0)

	// Filling the queue past 80 percent marks unhealthy.
	for i := 0; i < 13; i++ {
		require.True(t, conn.enqueue(pongEnvelope()))
	}
	assert.False(t, m.connectionHealthy(conn))
}

func TestScanEvictsStaleConnections(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{StaleAfter: time.Minute})

	server, _ := wsPair(t)
	stale, err := h.Attach("stale", "u1", server)
	require.NoError(t, err)
	fresh := quietConn(t, h, "fresh")

	stale.lastActivity.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	m.scan()

	assert.Nil(t, h.registry.Get("stale"))
	assert.NotNil(t, h.registry.Get(fresh.ID))
}

func TestScanUpdatesAggregateState(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{StaleAfter: time.Hour, WarningPct: 10, CriticalPct: 50})

	c1 := quietConn(t, h, "c1")
	quietConn(t, h, "c2")
	c1.errorCount.Store(2)

	m.scan()
	assert.Equal(t, HealthCritical, m.State(), "one of two unhealthy crosses 50 percent")

	c1.errorCount.Store(0)
	m.scan()
	assert.Equal(t, HealthHealthy, m.State())
}

func TestStatsSnapshot(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{})

	conn := quietConn(t, h, "c1")
	h.index.Subscribe(DimLine, "L1", conn.ID)
	h.index.Subscribe(DimOEE, "L1", conn.ID)
	require.True(t, conn.enqueue(pongEnvelope()))
	conn.sent.Add(5)
	conn.dropped.Add(2)

	stats := m.StatsSnapshot()

	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 2, stats.Subscriptions)
	assert.Equal(t, 1, stats.ByDimension[DimLine])
	assert.Equal(t, 1, stats.QueuedMessages)
	assert.Equal(t, int64(5), stats.MessagesSent)
	assert.Equal(t, int64(2), stats.MessagesDropped)
	assert.Equal(t, HealthHealthy, stats.Health)
	assert.Positive(t, stats.Goroutines)
	assert.False(t, stats.GeneratedAt.IsZero())
}

func TestConnectionDetailMissing(t *testing.T) {
	m := NewMonitor(newTestHub(t), MonitorOptions{})
	_, ok := m.ConnectionDetail("ghost")
	assert.False(t, ok)
}

func TestConnectionList(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{})
	quietConn(t, h, "c1")
	quietConn(t, h, "c2")

	list := m.ConnectionList()
	require.Len(t, list, 2)
}

func TestMonitorStartStop(t *testing.T) {
	h := newTestHub(t)
	m := NewMonitor(h, MonitorOptions{ScanInterval: 10 * time.Millisecond, StaleAfter: time.Hour})

	m.Start()
	time.Sleep(35 * time.Millisecond)
	m.Stop()

	// Stop is idempotent and the loop has exited.
	m.Stop()
	assert.Equal(t, HealthHealthy, m.State())
}
