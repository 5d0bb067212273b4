package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Priority defines the delivery ordering of an outbound message. Higher
// priority messages are placed ahead of lower ones in a connection's
// outbound queue and are never starved by lower-priority backlog.
type Priority int

// Priority levels, lowest to highest urgency. The numeric values index the
// per-level FIFO lanes of the outbound queue.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// NumPriorities is the number of distinct priority levels
const NumPriorities = 4

// String returns the wire representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether the priority is one of the four defined levels
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// MarshalJSON encodes the priority as its wire string
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a priority from its wire string
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePriority converts a wire string into a Priority
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "LOW":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}
