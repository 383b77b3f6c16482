package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type subjectRepo interface {
	Create(ctx context.Context, subject *models.Subject) error
	List(ctx context.Context) ([]models.Subject, error)
}

// CreateSubjectRequest registers a subject.
type CreateSubjectRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code"`
}

// SubjectService manages the subject catalogue.
type SubjectService struct {
	subjects  subjectRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs SubjectService.
func NewSubjectService(subjects subjectRepo, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{subjects: subjects, validator: validate, logger: logger}
}

// Create registers a subject.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{Name: req.Name, Code: req.Code}
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// List returns all subjects.
func (s *SubjectService) List(ctx context.Context) ([]models.Subject, error) {
	subjects, err := s.subjects.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}
