// Package metric provides the Prometheus registry shared by FloorLink
// components.
//
// A single MetricsRegistry is constructed at process startup and handed to
// the hub, gateway, ingestor and queue layers; each registers its own
// collectors under a component-scoped key so duplicate registrations fail
// loudly instead of shadowing each other. The registry is optional
// throughout the codebase: components treat a nil registry as
// metrics-disabled.
//
//	registry := metric.NewMetricsRegistry()
//	mux.Handle("/metrics", registry.Handler())
package metric
