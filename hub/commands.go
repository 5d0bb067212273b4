package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/floorlink/floorlink/message"
)

// Inbound command types (client -> server). The set is closed: anything
// else is answered with UNKNOWN_MESSAGE_TYPE.
const (
	cmdSubscribe            = "subscribe"
	cmdUnsubscribe          = "unsubscribe"
	cmdPing                 = "ping"
	cmdHeartbeat            = "heartbeat"
	cmdGetStats             = "get_stats"
	cmdGetConnectionDetails = "get_connection_details"
)

// StatsSource provides the registry/monitor snapshots served by the
// get_stats and get_connection_details commands. Implemented by the
// health monitor.
type StatsSource interface {
	StatsSnapshot() Stats
	ConnectionDetail(connID string) (ConnectionDetail, bool)
}

// CommandHandler parses client control messages and mutates the
// subscription index or replies directly. No command ever terminates the
// connection; only transport-level disconnects and health eviction do.
type CommandHandler struct {
	hub        *Hub
	dispatcher *Dispatcher
	stats      StatsSource
	logger     *slog.Logger
	table      map[string]func(conn *Conn, in *message.Inbound)
}

// NewCommandHandler builds the handler and its dispatch table. The table
// is the single place mapping command tags to behavior; unknown tags are
// rejected at this boundary.
func NewCommandHandler(h *Hub, d *Dispatcher, stats StatsSource) *CommandHandler {
	ch := &CommandHandler{
		hub:        h,
		dispatcher: d,
		stats:      stats,
		logger:     h.logger.With("component", "commands"),
	}
	ch.table = map[string]func(conn *Conn, in *message.Inbound){
		cmdSubscribe:            ch.handleSubscribe,
		cmdUnsubscribe:          ch.handleUnsubscribe,
		cmdPing:                 ch.handlePing,
		cmdHeartbeat:            ch.handleHeartbeat,
		cmdGetStats:             ch.handleGetStats,
		cmdGetConnectionDetails: ch.handleGetConnectionDetails,
	}
	return ch
}

// Handle processes one raw inbound frame from a connection. Malformed
// payloads and unknown types are answered with typed errors; internal
// faults are isolated to a generic error reply.
func (ch *CommandHandler) Handle(conn *Conn, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			ch.logger.Error("command panic",
				"connection_id", conn.ID, "panic", r, "stack", string(debug.Stack()))
			ch.reply(conn, message.NewError(message.CodeInternalError, "internal error"))
		}
	}()

	conn.Touch()

	var in message.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		ch.reply(conn, message.NewError(message.CodeInvalidJSON, "payload is not valid JSON"))
		return
	}

	handler, ok := ch.table[in.Type]
	if !ok {
		ch.reply(conn, message.NewError(message.CodeUnknownMessageType, "unknown message type: "+in.Type))
		return
	}
	handler(conn, &in)
}

func (ch *CommandHandler) reply(conn *Conn, env *message.Envelope) {
	ch.dispatcher.SendPersonal(conn.ID, env)
}

// subscriptionReply echoes the normalized target back on confirmations
type subscriptionReply struct {
	SubscriptionType string `json:"subscription_type"`
	Target           string `json:"target"`
}

func (ch *CommandHandler) handleSubscribe(conn *Conn, in *message.Inbound) {
	dim, key, ok := ch.resolveTarget(conn, in)
	if !ok {
		return
	}

	// The index mutation is applied synchronously before the
	// confirmation is enqueued, so an event observed after the
	// confirmation can never miss this subscriber.
	ch.hub.index.Subscribe(dim, key, conn.ID)
	ch.hub.metrics.setSubscriptions(ch.hub.index.Total())

	ch.logger.Debug("subscribed", "connection_id", conn.ID, "dimension", dim, "key", key)
	ch.reply(conn, message.New(message.TypeSubscriptionConfirmed, subscriptionReply{
		SubscriptionType: string(dim),
		Target:           key,
	}))
}

func (ch *CommandHandler) handleUnsubscribe(conn *Conn, in *message.Inbound) {
	dim, key, ok := ch.resolveTarget(conn, in)
	if !ok {
		return
	}

	ch.hub.index.Unsubscribe(dim, key, conn.ID)
	ch.hub.metrics.setSubscriptions(ch.hub.index.Total())

	ch.logger.Debug("unsubscribed", "connection_id", conn.ID, "dimension", dim, "key", key)
	ch.reply(conn, message.New(message.TypeUnsubscribeConfirmed, subscriptionReply{
		SubscriptionType: string(dim),
		Target:           key,
	}))
}

// resolveTarget validates subscription_type and target_id and returns the
// normalized (dimension, key). On failure it replies with the specific
// validation code and takes no index action.
func (ch *CommandHandler) resolveTarget(conn *Conn, in *message.Inbound) (Dimension, string, bool) {
	if in.SubscriptionType == "" {
		ch.reply(conn, message.NewError(message.CodeMissingSubscriptionType, "subscription_type is required"))
		return "", "", false
	}
	dim, ok := ParseDimension(in.SubscriptionType)
	if !ok {
		ch.reply(conn, message.NewError(message.CodeUnknownSubscriptionType,
			"unknown subscription type: "+in.SubscriptionType))
		return "", "", false
	}
	if len(in.TargetID) == 0 {
		ch.reply(conn, message.NewError(message.CodeMissingTargetID, "target_id is required"))
		return "", "", false
	}

	key, err := normalizeTarget(dim, in.TargetID)
	if err != nil {
		ch.reply(conn, message.NewError(message.CodeMissingTargetID, err.Error()))
		return "", "", false
	}
	return dim, key, true
}

// structuredTarget is the object form of target_id
type structuredTarget struct {
	LineID        string `json:"line_id,omitempty"`
	EquipmentCode string `json:"equipment_code,omitempty"`
	EscalationID  string `json:"escalation_id,omitempty"`
	Priority      string `json:"priority,omitempty"`
	ID            string `json:"id,omitempty"`
}

// normalizeTarget turns the wire target_id (shorthand string or
// structured object) into the index key for the dimension.
func normalizeTarget(dim Dimension, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeShorthand(dim, s)
	}

	var t structuredTarget
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", errors.New("target_id must be a string or object")
	}
	switch dim {
	case DimDowntime:
		return DowntimeKey(t.LineID, t.EquipmentCode), nil
	case DimEscalation:
		return EscalationKey(t.EscalationID, t.Priority), nil
	default:
		if t.ID != "" {
			return t.ID, nil
		}
		if t.LineID != "" {
			return t.LineID, nil
		}
		return "", errors.New("target_id object missing id")
	}
}

// normalizeShorthand interprets the string forms: "all", "line:<id>",
// "equipment:<code>", "escalation:<id>", "priority:<level>", or a bare
// identifier interpreted by dimension-specific default.
func normalizeShorthand(dim Dimension, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("target_id is empty")
	}
	if strings.EqualFold(s, "all") {
		return KeyAll, nil
	}

	prefix, value, hasPrefix := strings.Cut(s, ":")
	switch dim {
	case DimDowntime:
		if !hasPrefix {
			// Bare identifier defaults to a line scope.
			return DowntimeKey(s, ""), nil
		}
		switch prefix {
		case "line":
			return DowntimeKey(value, ""), nil
		case "equipment":
			return DowntimeKey("", value), nil
		default:
			return "", errors.New("unsupported downtime target: " + s)
		}
	case DimEscalation:
		if !hasPrefix {
			return EscalationKey(s, ""), nil
		}
		switch prefix {
		case "escalation":
			return EscalationKey(value, ""), nil
		case "priority":
			return EscalationKey("", strings.ToLower(value)), nil
		default:
			return "", errors.New("unsupported escalation target: " + s)
		}
	default:
		if hasPrefix {
			// "line:L1" on the line dimension means the bare id.
			return value, nil
		}
		return s, nil
	}
}

func (ch *CommandHandler) handlePing(conn *Conn, _ *message.Inbound) {
	ch.reply(conn, message.New(message.TypePong, nil))
}

// heartbeatReply echoes the client's diagnostic payload
type heartbeatReply struct {
	Echo json.RawMessage `json:"echo,omitempty"`
}

func (ch *CommandHandler) handleHeartbeat(conn *Conn, in *message.Inbound) {
	conn.Touch()
	ch.reply(conn, message.New(message.TypeHeartbeatResponse, heartbeatReply{Echo: in.Data}))
}

func (ch *CommandHandler) handleGetStats(conn *Conn, _ *message.Inbound) {
	ch.reply(conn, message.New(message.TypeStats, ch.stats.StatsSnapshot()))
}

func (ch *CommandHandler) handleGetConnectionDetails(conn *Conn, _ *message.Inbound) {
	detail, ok := ch.stats.ConnectionDetail(conn.ID)
	if !ok {
		ch.reply(conn, message.NewError(message.CodeInternalError, "connection not found"))
		return
	}
	ch.reply(conn, message.New(message.TypeConnectionDetails, detail))
}
