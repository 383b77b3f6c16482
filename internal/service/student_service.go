package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/repository"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type studentRepo interface {
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	AddGuardian(ctx context.Context, studentID, userID string) error
	RemoveGuardian(ctx context.Context, studentID, userID string) error
}

type userInfoReader interface {
	FindInfoByIDs(ctx context.Context, ids []string) ([]models.UserInfo, error)
}

type studentAttendanceReader interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.AttendanceRecord, error)
}

// CreateStudentRequest is the student admission payload.
type CreateStudentRequest struct {
	FirstName       string     `json:"first_name" validate:"required"`
	LastName        string     `json:"last_name" validate:"required"`
	DOB             *time.Time `json:"dob"`
	AdmissionNumber string     `json:"admission_number" validate:"required"`
	CurrentClassID  *string    `json:"current_class_id"`
	PhotoURL        string     `json:"photo_url"`
	GuardianIDs     []string   `json:"guardian_ids"`
}

// UpdateStudentRequest rewrites mutable student fields.
type UpdateStudentRequest struct {
	FirstName      string     `json:"first_name" validate:"required"`
	LastName       string     `json:"last_name" validate:"required"`
	DOB            *time.Time `json:"dob"`
	CurrentClassID *string    `json:"current_class_id"`
	PhotoURL       string     `json:"photo_url"`
	Active         *bool      `json:"active"`
}

// StudentService orchestrates student admission and guardian-scoped reads.
type StudentService struct {
	students   studentRepo
	users      userInfoReader
	attendance studentAttendanceReader
	visibility *VisibilityService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(students studentRepo, users userInfoReader, attendance studentAttendanceReader, visibility *VisibilityService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		students:   students,
		users:      users,
		attendance: attendance,
		visibility: visibility,
		validator:  validate,
		logger:     logger,
	}
}

// Create admits a student and links the provided guardians. Guardian ids
// that do not resolve to a parent user are skipped.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		DOB:             req.DOB,
		AdmissionNumber: req.AdmissionNumber,
		CurrentClassID:  req.CurrentClassID,
		PhotoURL:        req.PhotoURL,
		Active:          true,
	}
	if err := s.students.Create(ctx, student); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if len(req.GuardianIDs) > 0 {
		infos, err := s.users.FindInfoByIDs(ctx, req.GuardianIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardians")
		}
		for _, info := range infos {
			if info.Role != models.RoleParent {
				continue
			}
			if err := s.students.AddGuardian(ctx, student.ID, info.ID); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link guardian")
			}
			student.Guardians = append(student.Guardians, info)
		}
	}

	return student, nil
}

// Update rewrites a student's mutable fields.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.DOB = req.DOB
	student.CurrentClassID = req.CurrentClassID
	student.PhotoURL = req.PhotoURL
	if req.Active != nil {
		student.Active = *req.Active
	}
	if err := s.students.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// List returns the students visible to the actor. Parents see only their
// children; roles without a visibility rule see an empty collection.
func (s *StudentService) List(ctx context.Context, actor models.Actor, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	switch s.visibility.Scope(actor) {
	case ScopeFull:
	case ScopeGuardian:
		filter.GuardianID = actor.ID
	default:
		return []models.Student{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}

	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return students, &models.Pagination{Page: page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single student, guarded by the visibility layer.
func (s *StudentService) Get(ctx context.Context, actor models.Actor, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.visibility.Authorize(ctx, actor, StudentSelf(student.ID)); err != nil {
		return nil, err
	}
	return student, nil
}

// Attendance returns the student's recent attendance, newest first.
func (s *StudentService) Attendance(ctx context.Context, actor models.Actor, studentID string, limit int) ([]models.AttendanceRecord, error) {
	if err := s.visibility.Authorize(ctx, actor, StudentSelf(studentID)); err != nil {
		return nil, err
	}
	records, err := s.attendance.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// AddGuardian links a parent user to a student.
func (s *StudentService) AddGuardian(ctx context.Context, studentID, userID string) error {
	infos, err := s.users.FindInfoByIDs(ctx, []string{userID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardian")
	}
	if len(infos) == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "guardian user not found")
	}
	if infos[0].Role != models.RoleParent {
		return appErrors.Clone(appErrors.ErrValidation, "guardian must have the parent role")
	}
	if err := s.students.AddGuardian(ctx, studentID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link guardian")
	}
	return nil
}

// RemoveGuardian unlinks a guardian from a student.
func (s *StudentService) RemoveGuardian(ctx context.Context, studentID, userID string) error {
	if err := s.students.RemoveGuardian(ctx, studentID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unlink guardian")
	}
	return nil
}
