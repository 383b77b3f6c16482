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

type assessmentRepo interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error)
}

// CreateAssessmentRequest registers a graded activity.
type CreateAssessmentRequest struct {
	Title     string    `json:"title" validate:"required"`
	SubjectID string    `json:"subject_id" validate:"required,uuid"`
	ClassID   string    `json:"class_id" validate:"required,uuid"`
	TermID    string    `json:"term_id" validate:"required,uuid"`
	Date      time.Time `json:"date" validate:"required"`
	Weight    float64   `json:"weight" validate:"gt=0"`
	Type      string    `json:"assessment_type" validate:"required,oneof=exam test assignment continuous"`
}

// AssessmentService manages graded activities.
type AssessmentService struct {
	assessments assessmentRepo
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssessmentService constructs AssessmentService.
func NewAssessmentService(assessments assessmentRepo, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{assessments: assessments, validator: validate, logger: logger}
}

// Create registers an assessment.
func (s *AssessmentService) Create(ctx context.Context, actor models.Actor, req CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessment := &models.Assessment{
		Title:     req.Title,
		SubjectID: req.SubjectID,
		ClassID:   req.ClassID,
		TermID:    req.TermID,
		Date:      req.Date,
		Weight:    req.Weight,
		Type:      models.AssessmentType(req.Type),
	}
	if actor.ID != "" {
		createdBy := actor.ID
		assessment.CreatedBy = &createdBy
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment")
	}
	return assessment, nil
}

// Get returns one assessment.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return assessment, nil
}

// List returns assessments matching the filter.
func (s *AssessmentService) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, *models.Pagination, error) {
	assessments, total, err := s.assessments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return assessments, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}
