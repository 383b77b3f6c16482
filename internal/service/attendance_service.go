package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/repository"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type attendanceRepo interface {
	Create(ctx context.Context, record *models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

// RecordAttendanceRequest marks one student for one calendar day.
type RecordAttendanceRequest struct {
	StudentID string    `json:"student_id" validate:"required,uuid"`
	Date      time.Time `json:"date" validate:"required"`
	Status    string    `json:"status" validate:"required,oneof=present absent late excused"`
	Note      string    `json:"note"`
}

// AttendanceService records and lists daily attendance.
type AttendanceService struct {
	attendance attendanceRepo
	visibility *VisibilityService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(attendance attendanceRepo, visibility *VisibilityService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		attendance: attendance,
		visibility: visibility,
		validator:  validate,
		logger:     logger,
	}
}

// Record writes one attendance row. A second mark for the same student
// and day is rejected.
func (s *AttendanceService) Record(ctx context.Context, actor models.Actor, req RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	record := &models.AttendanceRecord{
		StudentID: req.StudentID,
		Date:      req.Date.Truncate(24 * time.Hour),
		Status:    models.AttendanceStatus(req.Status),
		Note:      req.Note,
	}
	if actor.ID != "" {
		recordedBy := actor.ID
		record.RecordedBy = &recordedBy
	}
	if err := s.attendance.Create(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this student and date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return record, nil
}

// List returns the attendance records visible to the actor.
func (s *AttendanceService) List(ctx context.Context, actor models.Actor, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	switch s.visibility.Scope(actor) {
	case ScopeFull:
	case ScopeGuardian:
		filter.GuardianID = actor.ID
	default:
		return []models.AttendanceRecord{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}

	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return records, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}
