package models

import "time"

// AcademicYear represents a school year, e.g. "2025/2026".
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// Term represents a term within an academic year.
type Term struct {
	ID             string    `db:"id" json:"id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Name           string    `db:"name" json:"name"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
}
