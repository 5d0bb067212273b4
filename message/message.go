// Package message defines the FloorLink wire protocol: the outbound
// envelope, priority levels, the closed sets of event and command types,
// and the domain event payloads carried by the broadcaster.
package message

import (
	"encoding/json"
	"time"
)

// Outbound message types (server -> client)
const (
	TypeConnectionEstablished = "connection_established"
	TypeSubscriptionConfirmed = "subscription_confirmed"
	TypeUnsubscribeConfirmed  = "unsubscribe_confirmed"
	TypeProductionUpdate      = "production_update"
	TypeOEEUpdate             = "oee_update"
	TypeAndonEvent            = "andon_event"
	TypeDowntimeEvent         = "downtime_event"
	TypeEscalationEvent       = "escalation_event"
	TypeEquipmentFault        = "equipment_fault_occurred"
	TypeJobUpdate             = "job_update"
	TypeQualityAlert          = "quality_alert"
	TypeChangeoverUpdate      = "changeover_update"
	TypeSystemAlert           = "system_alert"
	TypePong                  = "pong"
	TypeHeartbeatResponse     = "heartbeat_response"
	TypeStats                 = "stats"
	TypeConnectionDetails     = "connection_details"
	TypeError                 = "error"
)

// Error codes carried by TypeError replies
const (
	CodeInvalidJSON             = "INVALID_JSON"
	CodeUnknownMessageType      = "UNKNOWN_MESSAGE_TYPE"
	CodeMissingSubscriptionType = "MISSING_SUBSCRIPTION_TYPE"
	CodeMissingTargetID         = "MISSING_TARGET_ID"
	CodeUnknownSubscriptionType = "UNKNOWN_SUBSCRIPTION_TYPE"
	CodeRateLimited             = "RATE_LIMITED"
	CodeInternalError           = "INTERNAL_ERROR"
)

// Envelope is the outbound wire format. Envelopes are immutable once
// constructed; Timestamp is set at dispatch time by the dispatcher.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Priority  Priority  `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// New constructs an envelope with the fixed priority for its type
func New(msgType string, data any) *Envelope {
	return &Envelope{
		Type:     msgType,
		Data:     data,
		Priority: PriorityFor(msgType),
	}
}

// NewWithPriority constructs an envelope overriding the default priority
// for its type. Used when severity is carried in the payload (Andon and
// escalation events).
func NewWithPriority(msgType string, data any, priority Priority) *Envelope {
	return &Envelope{
		Type:     msgType,
		Data:     data,
		Priority: priority,
	}
}

// ErrorData is the payload of a TypeError reply
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewError constructs a typed error reply. Error replies are delivered at
// HIGH so a flooded queue does not silently swallow protocol feedback.
func NewError(code, msg string) *Envelope {
	return NewWithPriority(TypeError, ErrorData{Message: msg, Code: code}, PriorityHigh)
}

// priorityTable fixes the priority per outbound message type. Severity
// escalation for Andon and escalation events happens at the broadcaster,
// which overrides via NewWithPriority.
var priorityTable = map[string]Priority{
	TypeSystemAlert:           PriorityCritical,
	TypeEscalationEvent:       PriorityHigh,
	TypeAndonEvent:            PriorityHigh,
	TypeEquipmentFault:        PriorityHigh,
	TypeDowntimeEvent:         PriorityHigh,
	TypeProductionUpdate:      PriorityNormal,
	TypeOEEUpdate:             PriorityNormal,
	TypeJobUpdate:             PriorityNormal,
	TypeQualityAlert:          PriorityNormal,
	TypeChangeoverUpdate:      PriorityNormal,
	TypeConnectionEstablished: PriorityHigh,
	TypeSubscriptionConfirmed: PriorityHigh,
	TypeUnsubscribeConfirmed:  PriorityHigh,
	TypeStats:                 PriorityNormal,
	TypeConnectionDetails:     PriorityNormal,
	TypeError:                 PriorityHigh,
	TypePong:                  PriorityLow,
	TypeHeartbeatResponse:     PriorityLow,
}

// PriorityFor returns the fixed priority for an outbound message type,
// defaulting to NORMAL for types not in the table.
func PriorityFor(msgType string) Priority {
	if p, ok := priorityTable[msgType]; ok {
		return p
	}
	return PriorityNormal
}

// Encode marshals the envelope for transmission
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Inbound is the client -> server command format. TargetID accepts either
// a shorthand string ("all", "line:<id>", "equipment:<code>",
// "escalation:<id>", "priority:<level>", or a bare identifier) or a
// structured object; it is normalized by the command handler.
type Inbound struct {
	Type             string          `json:"type"`
	SubscriptionType string          `json:"subscription_type,omitempty"`
	TargetID         json.RawMessage `json:"target_id,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}
