package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type behaviourRepo interface {
	Create(ctx context.Context, incident *models.BehaviourIncident) error
	SetNotified(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.BehaviourIncident, error)
	List(ctx context.Context, filter models.BehaviourFilter) ([]models.BehaviourIncident, int, error)
}

// ReportIncidentRequest records a discipline event for a student.
type ReportIncidentRequest struct {
	StudentID   string     `json:"student_id" validate:"required,uuid"`
	Date        *time.Time `json:"date"`
	Description string     `json:"description" validate:"required"`
	ActionTaken string     `json:"action_taken"`
	Severity    string     `json:"severity" validate:"required,oneof=low medium high"`
}

// BehaviourService records incidents and notifies guardians.
type BehaviourService struct {
	incidents  behaviourRepo
	students   studentReader
	notifier   *NotifierService
	visibility *VisibilityService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewBehaviourService constructs BehaviourService.
func NewBehaviourService(incidents behaviourRepo, students studentReader, notifier *NotifierService, visibility *VisibilityService, validate *validator.Validate, logger *zap.Logger) *BehaviourService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BehaviourService{
		incidents:  incidents,
		students:   students,
		notifier:   notifier,
		visibility: visibility,
		validator:  validate,
		logger:     logger,
	}
}

// Report records an incident and fans a notification out to every
// guardian. NotifiedParents is set only when at least one notification
// row was written.
func (s *BehaviourService) Report(ctx context.Context, actor models.Actor, req ReportIncidentRequest) (*models.BehaviourIncident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}
	incident := &models.BehaviourIncident{
		StudentID:   req.StudentID,
		Date:        date,
		Description: req.Description,
		ActionTaken: req.ActionTaken,
		Severity:    models.IncidentSeverity(req.Severity),
	}
	if actor.ID != "" {
		reportedBy := actor.ID
		incident.ReportedBy = &reportedBy
	}
	if err := s.incidents.Create(ctx, incident); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record incident")
	}

	if created := s.notifier.IncidentReported(ctx, student, incident); created > 0 {
		if err := s.incidents.SetNotified(ctx, incident.ID); err != nil {
			s.logger.Warn("failed to flag incident as notified",
				zap.String("incident_id", incident.ID), zap.Error(err))
		} else {
			incident.NotifiedParents = true
		}
	}
	return incident, nil
}

// List returns the incidents visible to the actor.
func (s *BehaviourService) List(ctx context.Context, actor models.Actor, filter models.BehaviourFilter) ([]models.BehaviourIncident, *models.Pagination, error) {
	switch s.visibility.Scope(actor) {
	case ScopeFull:
	case ScopeGuardian:
		filter.GuardianID = actor.ID
	default:
		return []models.BehaviourIncident{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}

	incidents, total, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incidents")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return incidents, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single incident, guarded by the visibility layer.
func (s *BehaviourService) Get(ctx context.Context, actor models.Actor, id string) (*models.BehaviourIncident, error) {
	incident, err := s.incidents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}
	if err := s.visibility.Authorize(ctx, actor, StudentSelf(incident.StudentID)); err != nil {
		return nil, err
	}
	return incident, nil
}
