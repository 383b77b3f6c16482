package models

import "time"

// Student represents an enrolled pupil. Guardians are parent-role users
// linked through the student_guardians join table.
type Student struct {
	ID              string     `db:"id" json:"id"`
	FirstName       string     `db:"first_name" json:"first_name"`
	LastName        string     `db:"last_name" json:"last_name"`
	DOB             *time.Time `db:"dob" json:"dob,omitempty"`
	AdmissionNumber string     `db:"admission_number" json:"admission_number"`
	CurrentClassID  *string    `db:"current_class_id" json:"current_class_id,omitempty"`
	PhotoURL        string     `db:"photo_url" json:"photo_url,omitempty"`
	Active          bool       `db:"active" json:"active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`

	Guardians []UserInfo `db:"-" json:"guardians,omitempty"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	ClassID  string
	Search   string
	Active   *bool
	Page     int
	PageSize int

	// GuardianID narrows the result to students having this user among
	// their guardians. Populated by the visibility layer for parents.
	GuardianID string
}
