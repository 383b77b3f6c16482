package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kps-school/kps-api/internal/models"
)

// BehaviourRepository manages behaviour incident persistence.
type BehaviourRepository struct {
	db *sqlx.DB
}

// NewBehaviourRepository constructs a new repository.
func NewBehaviourRepository(db *sqlx.DB) *BehaviourRepository {
	return &BehaviourRepository{db: db}
}

const behaviourColumns = `b.id, b.student_id, b.date, b.reported_by, b.description, b.action_taken, b.severity, b.notified_parents, b.created_at`

// Create inserts a behaviour incident.
func (r *BehaviourRepository) Create(ctx context.Context, incident *models.BehaviourIncident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	incident.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO behaviour_incidents (id, student_id, date, reported_by, description, action_taken, severity, notified_parents, created_at)
        VALUES (:id, :student_id, :date, :reported_by, :description, :action_taken, :severity, :notified_parents, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("create behaviour incident: %w", err)
	}
	return nil
}

// SetNotified flags the incident as having notified the guardians.
func (r *BehaviourRepository) SetNotified(ctx context.Context, id string) error {
	const query = `UPDATE behaviour_incidents SET notified_parents = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("set incident notified: %w", err)
	}
	return nil
}

// FindByID returns an incident by primary key.
func (r *BehaviourRepository) FindByID(ctx context.Context, id string) (*models.BehaviourIncident, error) {
	var incident models.BehaviourIncident
	query := fmt.Sprintf("SELECT %s FROM behaviour_incidents b WHERE b.id = $1", behaviourColumns)
	if err := r.db.GetContext(ctx, &incident, query, id); err != nil {
		return nil, err
	}
	return &incident, nil
}

// List returns incidents matching the filter along with the total count.
// When filter.GuardianID is set only incidents of guarded students match.
func (r *BehaviourRepository) List(ctx context.Context, filter models.BehaviourFilter) ([]models.BehaviourIncident, int, error) {
	base := "FROM behaviour_incidents b"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GuardianID != "" {
		base += " JOIN student_guardians sg ON sg.student_id = b.student_id"
		where = append(where, fmt.Sprintf("sg.user_id = $%d", len(args)+1))
		args = append(args, filter.GuardianID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("b.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if len(filter.Severities) > 0 {
		values := make([]string, len(filter.Severities))
		for i, s := range filter.Severities {
			values[i] = string(s)
		}
		where = append(where, fmt.Sprintf("b.severity = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(values))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base+" WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count behaviour incidents: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY b.date DESC, b.created_at DESC LIMIT $%d OFFSET $%d",
		behaviourColumns, base, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, (page-1)*size)

	var incidents []models.BehaviourIncident
	if err := r.db.SelectContext(ctx, &incidents, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list behaviour incidents: %w", err)
	}
	return incidents, total, nil
}

// Recent returns the latest incidents across all students.
func (r *BehaviourRepository) Recent(ctx context.Context, limit int) ([]models.BehaviourIncident, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf("SELECT %s FROM behaviour_incidents b ORDER BY b.created_at DESC LIMIT $1", behaviourColumns)
	var incidents []models.BehaviourIncident
	if err := r.db.SelectContext(ctx, &incidents, query, limit); err != nil {
		return nil, fmt.Errorf("recent behaviour incidents: %w", err)
	}
	return incidents, nil
}
