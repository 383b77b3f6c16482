package models

import "time"

// SchoolClass represents a class/stream, e.g. "P.4 Blue".
type SchoolClass struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	GradeLevel       int       `db:"grade_level" json:"grade_level"`
	TeacherInCharge  *string   `db:"teacher_in_charge" json:"teacher_in_charge,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSubject links a subject (and optionally its teacher) to a class.
// Unique on (class_id, subject_id).
type ClassSubject struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
