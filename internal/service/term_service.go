package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type termRepo interface {
	CreateYear(ctx context.Context, year *models.AcademicYear) error
	CreateTerm(ctx context.Context, term *models.Term) error
	ListYears(ctx context.Context) ([]models.AcademicYear, error)
	ListTerms(ctx context.Context, academicYearID string) ([]models.Term, error)
}

// CreateYearRequest registers an academic year.
type CreateYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

// CreateTermRequest registers a term within an academic year.
type CreateTermRequest struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required,uuid"`
	Name           string    `json:"name" validate:"required"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required,gtfield=StartDate"`
}

// TermService manages academic years and terms.
type TermService struct {
	terms     termRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs TermService.
func NewTermService(terms termRepo, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{terms: terms, validator: validate, logger: logger}
}

// CreateYear registers an academic year.
func (s *TermService) CreateYear(ctx context.Context, req CreateYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	year := &models.AcademicYear{Name: req.Name, StartDate: req.StartDate, EndDate: req.EndDate}
	if err := s.terms.CreateYear(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}
	return year, nil
}

// CreateTerm registers a term.
func (s *TermService) CreateTerm(ctx context.Context, req CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	term := &models.Term{
		AcademicYearID: req.AcademicYearID,
		Name:           req.Name,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}
	if err := s.terms.CreateTerm(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// ListYears returns all academic years.
func (s *TermService) ListYears(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.terms.ListYears(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, nil
}

// ListTerms returns the terms of an academic year, or all terms when the
// year id is empty.
func (s *TermService) ListTerms(ctx context.Context, academicYearID string) ([]models.Term, error) {
	terms, err := s.terms.ListTerms(ctx, academicYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, nil
}
