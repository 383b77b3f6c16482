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

// AttendanceRepository handles attendance persistence.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `a.id, a.student_id, a.date, a.status, a.recorded_by, a.note, a.created_at`

// Create inserts an attendance record. Unique on (student_id, date);
// violations bubble up for conflict mapping.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO attendance_records (id, student_id, date, status, recorded_by, note, created_at)
        VALUES (:id, :student_id, :date, :status, :recorded_by, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// List returns attendance records matching the filter along with the total
// count. When filter.GuardianID is set only records of guarded students
// match.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := "FROM attendance_records a"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GuardianID != "" {
		base += " JOIN student_guardians sg ON sg.student_id = a.student_id"
		where = append(where, fmt.Sprintf("sg.user_id = $%d", len(args)+1))
		args = append(args, filter.GuardianID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+" WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance records: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY a.date DESC LIMIT $%d OFFSET $%d",
		attendanceColumns, base, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance records: %w", err)
	}
	return records, total, nil
}

// ListByStudent returns the most recent records for a student, date
// descending, capped at limit.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf("SELECT %s FROM attendance_records a WHERE a.student_id = $1 ORDER BY a.date DESC LIMIT $2", attendanceColumns)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list attendance by student: %w", err)
	}
	return records, nil
}
