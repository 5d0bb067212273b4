package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/floorlink/floorlink/metric"
)

// ingestMetrics holds Prometheus metrics for the bridge. A nil receiver
// disables all recording.
type ingestMetrics struct {
	eventsIngested *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
}

func newIngestMetrics(registry *metric.MetricsRegistry) *ingestMetrics {
	if registry == nil {
		return nil
	}

	m := &ingestMetrics{
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total events received per subject",
		}, []string{"subject"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "ingest",
			Name:      "decode_failures_total",
			Help:      "Total undecodable event payloads per subject",
		}, []string{"subject"}),
	}

	registry.MustRegister("ingest", map[string]prometheus.Collector{
		"events_total":          m.eventsIngested,
		"decode_failures_total": m.decodeFailures,
	})
	return m
}

func (m *ingestMetrics) eventIngested(subject string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(subject).Inc()
}

func (m *ingestMetrics) decodeFailed(subject string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(subject).Inc()
}
