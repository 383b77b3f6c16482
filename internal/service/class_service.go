package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/repository"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type classRepo interface {
	Create(ctx context.Context, class *models.SchoolClass) error
	FindByID(ctx context.Context, id string) (*models.SchoolClass, error)
	List(ctx context.Context) ([]models.SchoolClass, error)
	AddSubject(ctx context.Context, link *models.ClassSubject) error
	Subjects(ctx context.Context, classID string) ([]models.ClassSubject, error)
}

// CreateClassRequest registers a class/stream.
type CreateClassRequest struct {
	Name            string  `json:"name" validate:"required"`
	GradeLevel      int     `json:"grade_level" validate:"min=0"`
	TeacherInCharge *string `json:"teacher_in_charge"`
}

// AssignSubjectRequest links a subject, and optionally its teacher, to a
// class.
type AssignSubjectRequest struct {
	SubjectID string  `json:"subject_id" validate:"required,uuid"`
	TeacherID *string `json:"teacher_id"`
}

// ClassService manages the class catalogue.
type ClassService struct {
	classes   classRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(classes classRepo, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, validator: validate, logger: logger}
}

// Create registers a class.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.SchoolClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.SchoolClass{
		Name:            req.Name,
		GradeLevel:      req.GradeLevel,
		TeacherInCharge: req.TeacherInCharge,
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// List returns all classes.
func (s *ClassService) List(ctx context.Context) ([]models.SchoolClass, error) {
	classes, err := s.classes.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.SchoolClass, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// AssignSubject links a subject to a class. Linking the same subject
// twice is rejected.
func (s *ClassService) AssignSubject(ctx context.Context, classID string, req AssignSubjectRequest) (*models.ClassSubject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject assignment")
	}
	link := &models.ClassSubject{
		ClassID:   classID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
	}
	if err := s.classes.AddSubject(ctx, link); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject already assigned to this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign subject")
	}
	return link, nil
}

// Subjects returns the subject links for a class.
func (s *ClassService) Subjects(ctx context.Context, classID string) ([]models.ClassSubject, error) {
	links, err := s.classes.Subjects(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class subjects")
	}
	return links, nil
}
