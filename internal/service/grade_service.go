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

type gradeRepo interface {
	Create(ctx context.Context, grade *models.GradeEntry) error
	FindByID(ctx context.Context, id string) (*models.GradeEntry, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeEntry, int, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type assessmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
}

// CreateGradeRequest records a score for a student on an assessment.
type CreateGradeRequest struct {
	StudentID    string  `json:"student_id" validate:"required,uuid"`
	AssessmentID string  `json:"assessment_id" validate:"required,uuid"`
	Score        float64 `json:"score" validate:"min=0"`
	Remarks      string  `json:"remarks"`
}

// GradeService records scores and fans notifications out to guardians.
type GradeService struct {
	grades      gradeRepo
	students    studentReader
	assessments assessmentReader
	notifier    *NotifierService
	visibility  *VisibilityService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepo, students studentReader, assessments assessmentReader, notifier *NotifierService, visibility *VisibilityService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:      grades,
		students:    students,
		assessments: assessments,
		notifier:    notifier,
		visibility:  visibility,
		validator:   validate,
		logger:      logger,
	}
}

// Create records a grade entry. Every guardian of the student receives a
// notification; notification failures do not undo the grade.
func (s *GradeService) Create(ctx context.Context, actor models.Actor, req CreateGradeRequest) (*models.GradeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	assessment, err := s.assessments.FindByID(ctx, req.AssessmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}

	grade := &models.GradeEntry{
		StudentID:    req.StudentID,
		AssessmentID: req.AssessmentID,
		Score:        req.Score,
		Remarks:      req.Remarks,
	}
	if actor.ID != "" {
		recordedBy := actor.ID
		grade.RecordedBy = &recordedBy
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "grade already recorded for this student and assessment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	s.notifier.GradeRecorded(ctx, student, assessment, grade)
	return grade, nil
}

// List returns the grade entries visible to the actor.
func (s *GradeService) List(ctx context.Context, actor models.Actor, filter models.GradeFilter) ([]models.GradeEntry, *models.Pagination, error) {
	switch s.visibility.Scope(actor) {
	case ScopeFull:
	case ScopeGuardian:
		filter.GuardianID = actor.ID
	default:
		return []models.GradeEntry{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}

	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return grades, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single grade entry, guarded by the visibility layer.
func (s *GradeService) Get(ctx context.Context, actor models.Actor, id string) (*models.GradeEntry, error) {
	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if err := s.visibility.Authorize(ctx, actor, StudentSelf(grade.StudentID)); err != nil {
		return nil, err
	}
	return grade, nil
}
