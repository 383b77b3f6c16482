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

// AssessmentRepository manages assessment persistence.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository creates a new assessment repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, title, subject_id, class_id, term_id, date, weight, assessment_type, created_by, created_at`

// Create inserts an assessment.
func (r *AssessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	assessment.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO assessments (id, title, subject_id, class_id, term_id, date, weight, assessment_type, created_by, created_at)
        VALUES (:id, :title, :subject_id, :class_id, :term_id, :date, :weight, :assessment_type, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assessment); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// FindByID returns an assessment by primary key.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	var assessment models.Assessment
	query := fmt.Sprintf("SELECT %s FROM assessments WHERE id = $1", assessmentColumns)
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// List returns assessments matching the filter along with the total count.
func (r *AssessmentRepository) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TermID != "" {
		where = append(where, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assessments WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s FROM assessments WHERE %s ORDER BY date DESC LIMIT $%d OFFSET $%d",
		assessmentColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, total, nil
}
