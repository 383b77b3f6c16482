package models

import "time"

// GradeEntry stores the score a student achieved on an assessment.
// Unique on (student_id, assessment_id).
type GradeEntry struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	Score        float64   `db:"score" json:"score"`
	Remarks      string    `db:"remarks" json:"remarks,omitempty"`
	RecordedBy   *string   `db:"recorded_by" json:"recorded_by,omitempty"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// GradeFilter captures query criteria for listing grade entries.
type GradeFilter struct {
	StudentID    string
	AssessmentID string
	Page         int
	PageSize     int

	// GuardianID narrows results to grades of students the user guards.
	GuardianID string
}

// GradeReportRow is a flattened grade row used by term reports.
type GradeReportRow struct {
	Subject    string  `db:"subject" json:"subject"`
	Assessment string  `db:"assessment" json:"assessment"`
	Type       string  `db:"assessment_type" json:"assessment_type"`
	Score      float64 `db:"score" json:"score"`
	Weight     float64 `db:"weight" json:"weight"`
	Remarks    string  `db:"remarks" json:"remarks"`
}
