package hub

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floorlink/floorlink/metric"
)

// hubMetrics holds Prometheus metrics for the hub. A nil receiver
// disables all recording, matching the nil-registry pattern used across
// the codebase.
type hubMetrics struct {
	connectionsActive  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	messagesSent       *prometheus.CounterVec
	messagesDropped    prometheus.Counter
	sendErrors         prometheus.Counter
	broadcastDuration  *prometheus.HistogramVec
	subscriptionsTotal prometheus.Gauge
}

func newHubMetrics(registry *metric.MetricsRegistry) *hubMetrics {
	if registry == nil {
		return nil
	}

	m := &hubMetrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "connections_active",
			Help:      "Number of currently registered connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "connections_total",
			Help:      "Total accepted connections",
		}),
		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "disconnections_total",
			Help:      "Total removed connections by reason",
		}, []string{"reason"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "messages_sent_total",
			Help:      "Total messages delivered to clients",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped by outbound queue bounds",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "send_errors_total",
			Help:      "Total transport write failures",
		}),
		broadcastDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to resolve and enqueue one broadcast",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"event"}),
		subscriptionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "hub",
			Name:      "subscriptions_active",
			Help:      "Number of active subscription entries",
		}),
	}

	registry.MustRegister("hub", map[string]prometheus.Collector{
		"connections_active":         m.connectionsActive,
		"connections_total":          m.connectionsTotal,
		"disconnections_total":       m.disconnectionTotal,
		"messages_sent_total":        m.messagesSent,
		"messages_dropped_total":     m.messagesDropped,
		"send_errors_total":          m.sendErrors,
		"broadcast_duration_seconds": m.broadcastDuration,
		"subscriptions_active":       m.subscriptionsTotal,
	})
	return m
}

func (m *hubMetrics) connectionOpened(active int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Set(float64(active))
}

func (m *hubMetrics) connectionClosed(reason string, active int) {
	if m == nil {
		return
	}
	m.disconnectionTotal.WithLabelValues(reason).Inc()
	m.connectionsActive.Set(float64(active))
}

func (m *hubMetrics) messageSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *hubMetrics) messageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *hubMetrics) sendFailed() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *hubMetrics) observeBroadcast(event string, seconds float64) {
	if m == nil {
		return
	}
	m.broadcastDuration.WithLabelValues(event).Observe(seconds)
}

func (m *hubMetrics) setSubscriptions(total int) {
	if m == nil {
		return
	}
	m.subscriptionsTotal.Set(float64(total))
}
