package message

import "time"

// Severity levels used by Andon and escalation events. These are domain
// severities, distinct from delivery Priority; the broadcaster maps
// critical severities to PriorityCritical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ProductionUpdate carries a production count or status change for a line
type ProductionUpdate struct {
	LineID      string         `json:"line_id"`
	JobID       string         `json:"job_id,omitempty"`
	UnitsOK     int64          `json:"units_ok"`
	UnitsScrap  int64          `json:"units_scrap"`
	RatePerHour float64        `json:"rate_per_hour,omitempty"`
	Status      string         `json:"status,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	ObservedAt  time.Time      `json:"observed_at"`
}

// OEEUpdate carries a recomputed OEE figure for a line or piece of equipment
type OEEUpdate struct {
	LineID        string    `json:"line_id"`
	EquipmentCode string    `json:"equipment_code,omitempty"`
	Availability  float64   `json:"availability"`
	Performance   float64   `json:"performance"`
	Quality       float64   `json:"quality"`
	OEE           float64   `json:"oee"`
	WindowStart   time.Time `json:"window_start,omitempty"`
	WindowEnd     time.Time `json:"window_end,omitempty"`
}

// AndonEvent is a floor-level alert raised when equipment or a process
// requires attention
type AndonEvent struct {
	EventID       string    `json:"event_id"`
	LineID        string    `json:"line_id"`
	EquipmentCode string    `json:"equipment_code,omitempty"`
	Category      string    `json:"category"` // fault, quality, safety, material
	Severity      string    `json:"severity"` // low, medium, high, critical
	Description   string    `json:"description,omitempty"`
	RaisedBy      string    `json:"raised_by,omitempty"`
	RaisedAt      time.Time `json:"raised_at"`
}

// DowntimeEvent records an interval during which equipment was not producing
type DowntimeEvent struct {
	EventID       string     `json:"event_id"`
	LineID        string     `json:"line_id"`
	EquipmentCode string     `json:"equipment_code,omitempty"`
	Reason        string     `json:"reason"`
	Category      string     `json:"category,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// EscalationEvent is the elevated notification raised when an Andon or
// downtime event is not acknowledged within its time bound
type EscalationEvent struct {
	EscalationID string    `json:"escalation_id"`
	SourceID     string    `json:"source_id,omitempty"` // originating andon/downtime event
	LineID       string    `json:"line_id,omitempty"`
	Priority     string    `json:"priority"` // low, medium, high, critical
	Level        int       `json:"level"`    // escalation tier (1 = first responder)
	AssignedTo   string    `json:"assigned_to,omitempty"`
	EscalatedAt  time.Time `json:"escalated_at"`
}

// EquipmentFault reports a hard fault on a piece of equipment
type EquipmentFault struct {
	EquipmentCode string    `json:"equipment_code"`
	LineID        string    `json:"line_id,omitempty"`
	FaultCode     string    `json:"fault_code"`
	Description   string    `json:"description,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SystemAlert is a process-wide notification delivered to every connection
type SystemAlert struct {
	AlertID  string    `json:"alert_id,omitempty"`
	Kind     string    `json:"kind"` // maintenance, shutdown, broadcast
	Text     string    `json:"text"`
	IssuedAt time.Time `json:"issued_at"`
}

// JobUpdate carries a job state transition on a line
type JobUpdate struct {
	JobID     string    `json:"job_id"`
	LineID    string    `json:"line_id,omitempty"`
	Status    string    `json:"status"` // scheduled, running, paused, completed
	Progress  float64   `json:"progress,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QualityAlert reports a quality check failure or SPC rule violation
type QualityAlert struct {
	AlertID    string    `json:"alert_id"`
	LineID     string    `json:"line_id"`
	JobID      string    `json:"job_id,omitempty"`
	CheckName  string    `json:"check_name,omitempty"`
	Result     string    `json:"result"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChangeoverUpdate reports progress of a line changeover
type ChangeoverUpdate struct {
	ChangeoverID string    `json:"changeover_id"`
	LineID       string    `json:"line_id"`
	FromJobID    string    `json:"from_job_id,omitempty"`
	ToJobID      string    `json:"to_job_id,omitempty"`
	Status       string    `json:"status"` // started, in_progress, completed
	UpdatedAt    time.Time `json:"updated_at"`
}
