package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floorlink/floorlink/metric"
)

// gatewayMetrics holds Prometheus metrics for the handshake path. A nil
// receiver disables all recording.
type gatewayMetrics struct {
	connectionsAccepted prometheus.Counter
	upgradeFailures     prometheus.Counter
	authRejections      prometheus.Counter
	commandsThrottled   prometheus.Counter
}

func newGatewayMetrics(registry *metric.MetricsRegistry) *gatewayMetrics {
	if registry == nil {
		return nil
	}

	m := &gatewayMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "connections_accepted_total",
			Help:      "Total successfully authenticated connections",
		}),
		upgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "upgrade_failures_total",
			Help:      "Total failed WebSocket upgrades",
		}),
		authRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "auth_rejections_total",
			Help:      "Total handshakes rejected for invalid credentials",
		}),
		commandsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "commands_throttled_total",
			Help:      "Total inbound commands dropped by the rate limit",
		}),
	}

	registry.MustRegister("gateway", map[string]prometheus.Collector{
		"connections_accepted_total": m.connectionsAccepted,
		"upgrade_failures_total":     m.upgradeFailures,
		"auth_rejections_total":      m.authRejections,
		"commands_throttled_total":   m.commandsThrottled,
	})
	return m
}

func (m *gatewayMetrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *gatewayMetrics) upgradeFailed() {
	if m == nil {
		return
	}
	m.upgradeFailures.Inc()
}

func (m *gatewayMetrics) authRejected() {
	if m == nil {
		return
	}
	m.authRejections.Inc()
}

func (m *gatewayMetrics) commandThrottled() {
	if m == nil {
		return
	}
	m.commandsThrottled.Inc()
}
