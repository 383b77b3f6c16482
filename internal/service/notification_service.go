package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type notificationRepo interface {
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id string) error
	CountUnreadByUser(ctx context.Context, userID string) (int, error)
}

// NotificationService exposes a user's own notification feed. Rows are
// written exclusively by the guardian fan-out.
type NotificationService struct {
	notifications notificationRepo
	logger        *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(notifications notificationRepo, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifications: notifications, logger: logger}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor models.Actor, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.notifications.ListByUser(ctx, actor.ID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if page < 1 {
		page = 1
	}
	return notifications, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// MarkRead flags one notification as read. Only the addressee may do so.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, id string) (*models.Notification, error) {
	notification, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if notification.UserID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "notification belongs to another user")
	}
	if !notification.Read {
		if err := s.notifications.MarkRead(ctx, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
		}
		notification.Read = true
	}
	return notification, nil
}

// UnreadCount returns how many of the actor's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	count, err := s.notifications.CountUnreadByUser(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}
