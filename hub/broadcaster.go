package hub

import (
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/floorlink/floorlink/message"
)

// Broadcaster translates domain events into dispatcher calls. Each entry
// point wraps the payload into a typed envelope at a fixed priority,
// resolves the subscriber set across every dimension relevant to the
// event, de-duplicates it, and hands it to the dispatcher.
//
// Entry points are non-blocking for callers: resolution and enqueueing
// are in-memory; socket I/O happens on the per-connection write pumps.
type Broadcaster struct {
	hub        *Hub
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewBroadcaster creates a broadcaster over the hub and dispatcher
func NewBroadcaster(h *Hub, d *Dispatcher) *Broadcaster {
	return &Broadcaster{
		hub:        h,
		dispatcher: d,
		logger:     h.logger.With("component", "broadcaster"),
	}
}

// BroadcastProductionUpdate fans a production update out to the line's
// production subscribers
func (b *Broadcaster) BroadcastProductionUpdate(update message.ProductionUpdate) {
	defer b.recover("production_update")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimLine, update.LineID)
	if update.JobID != "" {
		union(targets, b.hub.index.SubscribersFor(DimJob, update.JobID))
	}

	b.dispatcher.SendToSet(targets, message.New(message.TypeProductionUpdate, update))
	b.finish(message.TypeProductionUpdate, targets, start)
}

// BroadcastOEEUpdate fans an OEE recomputation out to OEE subscribers for
// the line plus equipment subscribers when the figure is equipment-scoped
func (b *Broadcaster) BroadcastOEEUpdate(update message.OEEUpdate) {
	defer b.recover("oee_update")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimOEE, update.LineID)
	if update.EquipmentCode != "" {
		union(targets, b.hub.index.SubscribersFor(DimEquipment, update.EquipmentCode))
	}

	b.dispatcher.SendToSet(targets, message.New(message.TypeOEEUpdate, update))
	b.finish(message.TypeOEEUpdate, targets, start)
}

// BroadcastAndonEvent fans an Andon event out across the line and
// equipment dimensions; high and critical events additionally resolve
// escalation subscribers. A connection matched by several dimensions
// receives the event exactly once.
func (b *Broadcaster) BroadcastAndonEvent(event message.AndonEvent) {
	defer b.recover("andon_event")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimLine, event.LineID)
	if event.EquipmentCode != "" {
		union(targets, b.hub.index.SubscribersFor(DimEquipment, event.EquipmentCode))
	}
	if event.Severity == message.SeverityHigh || event.Severity == message.SeverityCritical {
		union(targets, b.hub.index.EscalationSubscribers("", event.Severity))
	}

	env := message.New(message.TypeAndonEvent, event)
	if event.Severity == message.SeverityCritical {
		env = message.NewWithPriority(message.TypeAndonEvent, event, message.PriorityCritical)
	}
	b.dispatcher.SendToSet(targets, env)
	b.finish(message.TypeAndonEvent, targets, start)
}

// BroadcastDowntimeEvent fans a downtime event out to the hierarchical
// downtime buckets plus the affected line's subscribers
func (b *Broadcaster) BroadcastDowntimeEvent(event message.DowntimeEvent) {
	defer b.recover("downtime_event")
	start := time.Now()

	targets := b.hub.index.DowntimeSubscribers(event.LineID, event.EquipmentCode)
	union(targets, b.hub.index.SubscribersFor(DimLine, event.LineID))

	b.dispatcher.SendToSet(targets, message.New(message.TypeDowntimeEvent, event))
	b.finish(message.TypeDowntimeEvent, targets, start)
}

// BroadcastEscalation fans an escalation out to its hierarchical buckets
// plus the originating line's subscribers
func (b *Broadcaster) BroadcastEscalation(event message.EscalationEvent) {
	defer b.recover("escalation_event")
	start := time.Now()

	targets := b.hub.index.EscalationSubscribers(event.EscalationID, event.Priority)
	if event.LineID != "" {
		union(targets, b.hub.index.SubscribersFor(DimLine, event.LineID))
	}

	env := message.New(message.TypeEscalationEvent, event)
	if event.Priority == message.SeverityCritical {
		env = message.NewWithPriority(message.TypeEscalationEvent, event, message.PriorityCritical)
	}
	b.dispatcher.SendToSet(targets, env)
	b.finish(message.TypeEscalationEvent, targets, start)
}

// BroadcastEquipmentFault fans a hard equipment fault out to equipment
// subscribers plus the line's subscribers when the fault is line-scoped
func (b *Broadcaster) BroadcastEquipmentFault(fault message.EquipmentFault) {
	defer b.recover("equipment_fault")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimEquipment, fault.EquipmentCode)
	if fault.LineID != "" {
		union(targets, b.hub.index.SubscribersFor(DimLine, fault.LineID))
	}

	b.dispatcher.SendToSet(targets, message.New(message.TypeEquipmentFault, fault))
	b.finish(message.TypeEquipmentFault, targets, start)
}

// BroadcastJobUpdate fans a job state transition out to job subscribers
// plus the line's subscribers
func (b *Broadcaster) BroadcastJobUpdate(update message.JobUpdate) {
	defer b.recover("job_update")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimJob, update.JobID)
	if update.LineID != "" {
		union(targets, b.hub.index.SubscribersFor(DimLine, update.LineID))
	}

	b.dispatcher.SendToSet(targets, message.New(message.TypeJobUpdate, update))
	b.finish(message.TypeJobUpdate, targets, start)
}

// BroadcastQualityAlert fans a quality alert out to quality subscribers
// for the line
func (b *Broadcaster) BroadcastQualityAlert(alert message.QualityAlert) {
	defer b.recover("quality_alert")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimQuality, alert.LineID)
	b.dispatcher.SendToSet(targets, message.New(message.TypeQualityAlert, alert))
	b.finish(message.TypeQualityAlert, targets, start)
}

// BroadcastChangeoverUpdate fans changeover progress out to changeover
// subscribers for the line
func (b *Broadcaster) BroadcastChangeoverUpdate(update message.ChangeoverUpdate) {
	defer b.recover("changeover_update")
	start := time.Now()

	targets := b.hub.index.SubscribersFor(DimChangeover, update.LineID)
	b.dispatcher.SendToSet(targets, message.New(message.TypeChangeoverUpdate, update))
	b.finish(message.TypeChangeoverUpdate, targets, start)
}

// BroadcastSystemAlert targets every registered connection regardless of
// subscriptions, at CRITICAL priority
func (b *Broadcaster) BroadcastSystemAlert(alert message.SystemAlert) {
	defer b.recover("system_alert")
	start := time.Now()

	b.dispatcher.SendToAll(message.New(message.TypeSystemAlert, alert))
	b.hub.metrics.observeBroadcast(message.TypeSystemAlert, time.Since(start).Seconds())
}

func (b *Broadcaster) finish(event string, targets map[string]struct{}, start time.Time) {
	b.hub.metrics.observeBroadcast(event, time.Since(start).Seconds())
	b.logger.Debug("broadcast", "event", event, "targets", len(targets))
}

// recover isolates an unexpected fault in broadcast logic: it is logged
// and the broadcast is abandoned, but no connection and no other caller
// is affected.
func (b *Broadcaster) recover(event string) {
	if r := recover(); r != nil {
		b.logger.Error("broadcast panic",
			"event", event, "panic", r, "stack", string(debug.Stack()))
	}
}

// union merges src into dst in place
func union(dst, src map[string]struct{}) {
	for id := range src {
		dst[id] = struct{}{}
	}
}
