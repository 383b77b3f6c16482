package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kps-school/kps-api/internal/models"
)

// TermRepository manages academic years and their terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository creates a new term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// CreateYear inserts an academic year.
func (r *TermRepository) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	const query = `INSERT INTO academic_years (id, name, start_date, end_date) VALUES (:id, :name, :start_date, :end_date)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// CreateTerm inserts a term for an academic year.
func (r *TermRepository) CreateTerm(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	const query = `INSERT INTO terms (id, academic_year_id, name, start_date, end_date)
        VALUES (:id, :academic_year_id, :name, :start_date, :end_date)`
	if _, err := r.db.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("create term: %w", err)
	}
	return nil
}

// ListYears returns academic years, most recent first.
func (r *TermRepository) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	const query = `SELECT id, name, start_date, end_date FROM academic_years ORDER BY start_date DESC`
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// ListTerms returns the terms of an academic year in chronological order.
func (r *TermRepository) ListTerms(ctx context.Context, academicYearID string) ([]models.Term, error) {
	const query = `SELECT id, academic_year_id, name, start_date, end_date FROM terms WHERE academic_year_id = $1 ORDER BY start_date`
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, academicYearID); err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return terms, nil
}

// FindTermByID returns a term by primary key.
func (r *TermRepository) FindTermByID(ctx context.Context, id string) (*models.Term, error) {
	var term models.Term
	const query = `SELECT id, academic_year_id, name, start_date, end_date FROM terms WHERE id = $1`
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}
