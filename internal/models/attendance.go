package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord stores one status per student per calendar day.
// Unique on (student_id, date).
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	RecordedBy *string          `db:"recorded_by" json:"recorded_by,omitempty"`
	Note       string           `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceFilter captures query criteria for listing attendance records.
type AttendanceFilter struct {
	StudentID string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int

	// GuardianID narrows results to records of students the user guards.
	GuardianID string
}
