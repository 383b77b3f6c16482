package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kps-school/kps-api/internal/models"
)

// ClassRepository manages classes and their subject assignments.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.SchoolClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, grade_level, teacher_in_charge, created_at, updated_at)
        VALUES (:id, :name, :grade_level, :teacher_in_charge, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID returns a class by primary key.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.SchoolClass, error) {
	var class models.SchoolClass
	const query = `SELECT id, name, grade_level, teacher_in_charge, created_at, updated_at FROM classes WHERE id = $1`
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns every class ordered by grade then name.
func (r *ClassRepository) List(ctx context.Context) ([]models.SchoolClass, error) {
	const query = `SELECT id, name, grade_level, teacher_in_charge, created_at, updated_at FROM classes ORDER BY grade_level, name`
	var classes []models.SchoolClass
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// ListByTeacher returns classes where the teacher is in charge or teaches a
// subject.
func (r *ClassRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.SchoolClass, error) {
	const query = `SELECT DISTINCT c.id, c.name, c.grade_level, c.teacher_in_charge, c.created_at, c.updated_at
        FROM classes c
        LEFT JOIN class_subjects cs ON cs.class_id = c.id
        WHERE c.teacher_in_charge = $1 OR cs.teacher_id = $1
        ORDER BY c.grade_level, c.name`
	var classes []models.SchoolClass
	if err := r.db.SelectContext(ctx, &classes, query, teacherID); err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return classes, nil
}

// AddSubject assigns a subject (and optionally a teacher) to a class.
// Unique on (class_id, subject_id); violations bubble up.
func (r *ClassRepository) AddSubject(ctx context.Context, link *models.ClassSubject) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO class_subjects (id, class_id, subject_id, teacher_id, created_at)
        VALUES (:id, :class_id, :subject_id, :teacher_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("add class subject: %w", err)
	}
	return nil
}

// Subjects returns the subject links for a class.
func (r *ClassRepository) Subjects(ctx context.Context, classID string) ([]models.ClassSubject, error) {
	const query = `SELECT id, class_id, subject_id, teacher_id, created_at FROM class_subjects WHERE class_id = $1`
	var links []models.ClassSubject
	if err := r.db.SelectContext(ctx, &links, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return links, nil
}

// Count returns the number of classes.
func (r *ClassRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM classes`); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return count, nil
}
