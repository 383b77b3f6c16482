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

// StudentRepository manages students and their guardian links.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `s.id, s.first_name, s.last_name, s.dob, s.admission_number, s.current_class_id, s.photo_url, s.active, s.created_at, s.updated_at`

// Create inserts a student. Admission numbers are unique; violations bubble
// up for the service layer to map to a conflict.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, first_name, last_name, dob, admission_number, current_class_id, photo_url, active, created_at, updated_at)
        VALUES (:id, :first_name, :last_name, :dob, :admission_number, :current_class_id, :photo_url, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites mutable student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, dob = :dob,
        current_class_id = :current_class_id, photo_url = :photo_url, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// FindByID returns a student with guardians populated.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := fmt.Sprintf("SELECT %s FROM students s WHERE s.id = $1", studentColumns)
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	guardians, err := r.Guardians(ctx, id)
	if err != nil {
		return nil, err
	}
	student.Guardians = guardians
	return &student, nil
}

// List returns students matching the filter along with the total count.
// When filter.GuardianID is set only students guarded by that user match.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students s"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GuardianID != "" {
		base += " JOIN student_guardians sg ON sg.student_id = s.id"
		where = append(where, fmt.Sprintf("sg.user_id = $%d", len(args)+1))
		args = append(args, filter.GuardianID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.current_class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("s.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(s.first_name ILIKE $%d OR s.last_name ILIKE $%d OR s.admission_number ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) " + base + " WHERE " + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY s.last_name, s.first_name LIMIT $%d OFFSET $%d",
		studentColumns, base, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// Guardians returns the guardian users linked to the student.
func (r *StudentRepository) Guardians(ctx context.Context, studentID string) ([]models.UserInfo, error) {
	const query = `SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.role, u.is_superuser
        FROM users u
        JOIN student_guardians sg ON sg.user_id = u.id
        WHERE sg.student_id = $1
        ORDER BY u.username`
	var guardians []models.UserInfo
	if err := r.db.SelectContext(ctx, &guardians, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardians: %w", err)
	}
	return guardians, nil
}

// GuardianIDs returns the ids of the student's guardians.
func (r *StudentRepository) GuardianIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT user_id FROM student_guardians WHERE student_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list guardian ids: %w", err)
	}
	return ids, nil
}

// IsGuardian reports whether userID guards studentID.
func (r *StudentRepository) IsGuardian(ctx context.Context, studentID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM student_guardians WHERE student_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, userID); err != nil {
		return false, fmt.Errorf("check guardian: %w", err)
	}
	return exists, nil
}

// AddGuardian links a guardian to a student. Adding twice is a no-op.
func (r *StudentRepository) AddGuardian(ctx context.Context, studentID, userID string) error {
	const query = `INSERT INTO student_guardians (student_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, userID); err != nil {
		return fmt.Errorf("add guardian: %w", err)
	}
	return nil
}

// RemoveGuardian unlinks a guardian from a student.
func (r *StudentRepository) RemoveGuardian(ctx context.Context, studentID, userID string) error {
	const query = `DELETE FROM student_guardians WHERE student_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, userID); err != nil {
		return fmt.Errorf("remove guardian: %w", err)
	}
	return nil
}

// CountActive returns the number of active students.
func (r *StudentRepository) CountActive(ctx context.Context) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM students WHERE active = TRUE`
	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}
