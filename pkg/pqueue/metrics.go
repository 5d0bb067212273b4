package pqueue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floorlink/floorlink/metric"
)

// queueMetrics mirrors queue statistics into Prometheus collectors
type queueMetrics struct {
	depth prometheus.Gauge
	drops prometheus.Counter
}

func newQueueMetrics(registry *metric.MetricsRegistry, prefix string) (*queueMetrics, error) {
	m := &queueMetrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "depth",
			Help:        "Current number of queued items",
			ConstLabels: prometheus.Labels{"queue": prefix},
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "queue",
			Name:        "dropped_total",
			Help:        "Total items dropped due to the capacity bound",
			ConstLabels: prometheus.Labels{"queue": prefix},
		}),
	}

	if err := registry.Register(prefix, "queue_depth", m.depth); err != nil {
		return nil, err
	}
	if err := registry.Register(prefix, "queue_dropped_total", m.drops); err != nil {
		registry.Unregister(prefix, "queue_depth")
		return nil, err
	}
	return m, nil
}

func (m *queueMetrics) recordDepth(depth int) {
	m.depth.Set(float64(depth))
}

func (m *queueMetrics) recordDrop() {
	m.drops.Inc()
}
