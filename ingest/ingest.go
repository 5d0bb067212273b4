// Package ingest bridges domain events published on NATS into the hub's
// broadcaster. Upstream services publish JSON payloads on well-known
// subjects; the bridge decodes each and fans it out to subscribers.
package ingest

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/message"
	"github.com/floorlink/floorlink/metric"
	"github.com/floorlink/floorlink/natsclient"
)

// Subject suffixes under the configured prefix
const (
	subjProduction = "production.update"
	subjOEE        = "oee.update"
	subjAndon      = "andon.event"
	subjDowntime   = "downtime.event"
	subjEscalation = "escalation.event"
	subjFault      = "equipment.fault"
	subjJob        = "job.update"
	subjQuality    = "quality.alert"
	subjChangeover = "changeover.update"
	subjSystem     = "system.alert"
)

// Options configures the bridge
type Options struct {
	// SubjectPrefix is prepended to every subject, e.g. "floor"
	SubjectPrefix string
	// Logger is the parent logger; nil disables logging
	Logger *slog.Logger
	// Metrics is the shared registry; nil disables metrics
	Metrics *metric.MetricsRegistry
}

// Bridge subscribes to the domain subjects and forwards decoded events to
// the broadcaster. Decode failures are counted and skipped; a bad payload
// from one publisher must not wedge the stream.
type Bridge struct {
	client      *natsclient.Client
	broadcaster *hub.Broadcaster
	prefix      string
	logger      *slog.Logger
	metrics     *ingestMetrics
	subs        []*nats.Subscription
}

// New constructs the bridge
func New(client *natsclient.Client, b *hub.Broadcaster, opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = "floor"
	}
	return &Bridge{
		client:      client,
		broadcaster: b,
		prefix:      prefix,
		logger:      logger.With("component", "ingest"),
		metrics:     newIngestMetrics(opts.Metrics),
	}
}

// Start subscribes to every domain subject
func (b *Bridge) Start() error {
	handlers := map[string]nats.MsgHandler{
		subjProduction: decode(b, func(p message.ProductionUpdate) { b.broadcaster.BroadcastProductionUpdate(p) }),
		subjOEE:        decode(b, func(p message.OEEUpdate) { b.broadcaster.BroadcastOEEUpdate(p) }),
		subjAndon:      decode(b, func(p message.AndonEvent) { b.broadcaster.BroadcastAndonEvent(p) }),
		subjDowntime:   decode(b, func(p message.DowntimeEvent) { b.broadcaster.BroadcastDowntimeEvent(p) }),
		subjEscalation: decode(b, func(p message.EscalationEvent) { b.broadcaster.BroadcastEscalation(p) }),
		subjFault:      decode(b, func(p message.EquipmentFault) { b.broadcaster.BroadcastEquipmentFault(p) }),
		subjJob:        decode(b, func(p message.JobUpdate) { b.broadcaster.BroadcastJobUpdate(p) }),
		subjQuality:    decode(b, func(p message.QualityAlert) { b.broadcaster.BroadcastQualityAlert(p) }),
		subjChangeover: decode(b, func(p message.ChangeoverUpdate) { b.broadcaster.BroadcastChangeoverUpdate(p) }),
		subjSystem:     decode(b, func(p message.SystemAlert) { b.broadcaster.BroadcastSystemAlert(p) }),
	}

	for suffix, handler := range handlers {
		subject := b.prefix + "." + suffix
		sub, err := b.client.Subscribe(subject, handler)
		if err != nil {
			b.Stop()
			return err
		}
		b.subs = append(b.subs, sub)
		b.logger.Info("subscribed", "subject", subject)
	}
	return nil
}

// Stop unsubscribes from every subject
func (b *Bridge) Stop() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
}

// decode builds a handler that unmarshals the payload type and forwards
// it. Malformed payloads are logged and dropped.
func decode[T any](b *Bridge, forward func(T)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			b.logger.Warn("undecodable event payload",
				"subject", msg.Subject, "error", err)
			b.metrics.decodeFailed(msg.Subject)
			return
		}
		b.metrics.eventIngested(msg.Subject)
		forward(payload)
	}
}
