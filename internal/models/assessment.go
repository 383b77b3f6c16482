package models

import "time"

// AssessmentType classifies an assessment.
type AssessmentType string

const (
	AssessmentExam       AssessmentType = "exam"
	AssessmentTest       AssessmentType = "test"
	AssessmentAssignment AssessmentType = "assignment"
	AssessmentContinuous AssessmentType = "continuous"
)

// Valid returns true when the type is a supported value.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentExam, AssessmentTest, AssessmentAssignment, AssessmentContinuous:
		return true
	default:
		return false
	}
}

// Assessment represents a graded activity for a class, subject and term.
// Weight feeds aggregated scoring.
type Assessment struct {
	ID        string         `db:"id" json:"id"`
	Title     string         `db:"title" json:"title"`
	SubjectID string         `db:"subject_id" json:"subject_id"`
	ClassID   string         `db:"class_id" json:"class_id"`
	TermID    string         `db:"term_id" json:"term_id"`
	Date      time.Time      `db:"date" json:"date"`
	Weight    float64        `db:"weight" json:"weight"`
	Type      AssessmentType `db:"assessment_type" json:"assessment_type"`
	CreatedBy *string        `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// AssessmentFilter captures query criteria for listing assessments.
type AssessmentFilter struct {
	ClassID   string
	SubjectID string
	TermID    string
	Page      int
	PageSize  int
}
