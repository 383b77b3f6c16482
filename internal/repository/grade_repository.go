package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kps-school/kps-api/internal/models"
)

// GradeRepository handles grade entry persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `g.id, g.student_id, g.assessment_id, g.score, g.remarks, g.recorded_by, g.recorded_at`

// Create inserts a grade entry. Unique on (student_id, assessment_id);
// violations bubble up for conflict mapping.
func (r *GradeRepository) Create(ctx context.Context, grade *models.GradeEntry) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	grade.RecordedAt = time.Now().UTC()
	const query = `INSERT INTO grade_entries (id, student_id, assessment_id, score, remarks, recorded_by, recorded_at)
        VALUES (:id, :student_id, :assessment_id, :score, :remarks, :recorded_by, :recorded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create grade entry: %w", err)
	}
	return nil
}

// FindByID returns a grade entry by primary key.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.GradeEntry, error) {
	var grade models.GradeEntry
	query := fmt.Sprintf("SELECT %s FROM grade_entries g WHERE g.id = $1", gradeColumns)
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// List returns grade entries matching the filter along with the total count.
// When filter.GuardianID is set only grades of guarded students match.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeEntry, int, error) {
	base := "FROM grade_entries g"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GuardianID != "" {
		base += " JOIN student_guardians sg ON sg.student_id = g.student_id"
		where = append(where, fmt.Sprintf("sg.user_id = $%d", len(args)+1))
		args = append(args, filter.GuardianID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.AssessmentID != "" {
		where = append(where, fmt.Sprintf("g.assessment_id = $%d", len(args)+1))
		args = append(args, filter.AssessmentID)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+" WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count grade entries: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY g.recorded_at DESC LIMIT $%d OFFSET $%d",
		gradeColumns, base, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var grades []models.GradeEntry
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grade entries: %w", err)
	}
	return grades, total, nil
}

// ReportRows returns the flattened grade rows for a student within a term.
func (r *GradeRepository) ReportRows(ctx context.Context, studentID, termID string, limit int) ([]models.GradeReportRow, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT sub.name AS subject, a.title AS assessment, a.assessment_type, g.score, a.weight, COALESCE(g.remarks, '') AS remarks
        FROM grade_entries g
        JOIN assessments a ON a.id = g.assessment_id
        JOIN subjects sub ON sub.id = a.subject_id
        WHERE g.student_id = $1 AND a.term_id = $2
        ORDER BY sub.name, a.date
        LIMIT $3`
	var rows []models.GradeReportRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, termID, limit); err != nil {
		return nil, fmt.Errorf("report rows: %w", err)
	}
	return rows, nil
}
