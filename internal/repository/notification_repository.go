package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kps-school/kps-api/internal/models"
)

// NotificationRepository manages persisted notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, title, message, link, is_read, created_at`

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO notifications (id, user_id, title, message, link, is_read, created_at)
        VALUES (:id, :user_id, :title, :message, :link, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// FindByID returns a notification by primary key.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE id = $1", notificationColumns)
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, err
	}
	return &n, nil
}

// ListByUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3", notificationColumns)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, pageSize, (page-1)*pageSize); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead flags a notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// CountUnreadByUser returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnreadByUser(ctx context.Context, userID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
