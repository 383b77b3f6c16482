package models

import "time"

// IncidentSeverity classifies a behaviour incident.
type IncidentSeverity string

const (
	SeverityLow    IncidentSeverity = "low"
	SeverityMedium IncidentSeverity = "medium"
	SeverityHigh   IncidentSeverity = "high"
)

// Valid returns true when the severity is a supported value.
func (s IncidentSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// BehaviourIncident records a discipline event for a student. Creation
// triggers a notification to every guardian.
type BehaviourIncident struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	Date            time.Time        `db:"date" json:"date"`
	ReportedBy      *string          `db:"reported_by" json:"reported_by,omitempty"`
	Description     string           `db:"description" json:"description"`
	ActionTaken     string           `db:"action_taken" json:"action_taken,omitempty"`
	Severity        IncidentSeverity `db:"severity" json:"severity"`
	NotifiedParents bool             `db:"notified_parents" json:"notified_parents"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// BehaviourFilter captures query criteria for listing incidents.
type BehaviourFilter struct {
	StudentID  string
	Severities []IncidentSeverity
	Page       int
	PageSize   int

	// GuardianID narrows results to incidents of students the user guards.
	GuardianID string
}
