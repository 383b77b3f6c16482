package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockGradeRepo struct {
	grades    map[string]*models.GradeEntry
	createErr error
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.GradeEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	grade.ID = uuid.NewString()
	if m.grades == nil {
		m.grades = make(map[string]*models.GradeEntry)
	}
	m.grades[grade.ID] = grade
	return nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.GradeEntry, error) {
	grade, ok := m.grades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return grade, nil
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeEntry, int, error) {
	var out []models.GradeEntry
	for _, grade := range m.grades {
		out = append(out, *grade)
	}
	return out, len(out), nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return student, nil
}

type mockAssessmentReader struct {
	assessments map[string]*models.Assessment
}

func (m *mockAssessmentReader) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, ok := m.assessments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return assessment, nil
}

func newGradeFixture(createErr error) (*GradeService, *mockNotificationWriter) {
	grades := &mockGradeRepo{createErr: createErr}
	students := &mockStudentReader{students: map[string]*models.Student{
		"11111111-1111-1111-1111-111111111111": {ID: "11111111-1111-1111-1111-111111111111", FirstName: "Amina"},
	}}
	assessments := &mockAssessmentReader{assessments: map[string]*models.Assessment{
		"22222222-2222-2222-2222-222222222222": {ID: "22222222-2222-2222-2222-222222222222", Title: "Midterm"},
	}}
	writer := &mockNotificationWriter{}
	notifier := NewNotifierService(&mockGuardianLister{ids: []string{"p1", "p2"}}, writer, nil, true, zap.NewNop())
	visibility := NewVisibilityService(&mockGuardianChecker{}, zap.NewNop())
	return NewGradeService(grades, students, assessments, notifier, visibility, nil, zap.NewNop()), writer
}

func TestCreateGradeNotifiesGuardians(t *testing.T) {
	svc, writer := newGradeFixture(nil)

	grade, err := svc.Create(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, CreateGradeRequest{
		StudentID:    "11111111-1111-1111-1111-111111111111",
		AssessmentID: "22222222-2222-2222-2222-222222222222",
		Score:        85,
	})
	require.NoError(t, err)
	require.NotNil(t, grade.RecordedBy)
	assert.Equal(t, "t1", *grade.RecordedBy)
	assert.Len(t, writer.created, 2, "one notification per guardian")
}

func TestCreateGradeDuplicateConflicts(t *testing.T) {
	svc, writer := newGradeFixture(&pq.Error{Code: "23505"})

	_, err := svc.Create(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, CreateGradeRequest{
		StudentID:    "11111111-1111-1111-1111-111111111111",
		AssessmentID: "22222222-2222-2222-2222-222222222222",
		Score:        85,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, writer.created, "no fan-out when the write fails")
}

func TestCreateGradeUnknownStudent(t *testing.T) {
	svc, _ := newGradeFixture(nil)

	_, err := svc.Create(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, CreateGradeRequest{
		StudentID:    "99999999-9999-9999-9999-999999999999",
		AssessmentID: "22222222-2222-2222-2222-222222222222",
		Score:        50,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListGradesScopesByRole(t *testing.T) {
	svc, _ := newGradeFixture(nil)

	_, err := svc.Create(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, CreateGradeRequest{
		StudentID:    "11111111-1111-1111-1111-111111111111",
		AssessmentID: "22222222-2222-2222-2222-222222222222",
		Score:        70,
	})
	require.NoError(t, err)

	grades, _, err := svc.List(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, models.GradeFilter{})
	require.NoError(t, err)
	assert.Len(t, grades, 1)

	grades, pagination, err := svc.List(context.Background(), models.Actor{ID: "x1", Role: models.RoleStaff}, models.GradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, grades, "roles without a visibility rule see an empty collection")
	assert.Zero(t, pagination.TotalCount)
}
