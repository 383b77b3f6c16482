package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockBehaviourRepo struct {
	incidents   map[string]*models.BehaviourIncident
	notifiedErr error
}

func (m *mockBehaviourRepo) Create(ctx context.Context, incident *models.BehaviourIncident) error {
	incident.ID = uuid.NewString()
	if m.incidents == nil {
		m.incidents = make(map[string]*models.BehaviourIncident)
	}
	m.incidents[incident.ID] = incident
	return nil
}

func (m *mockBehaviourRepo) SetNotified(ctx context.Context, id string) error {
	if m.notifiedErr != nil {
		return m.notifiedErr
	}
	if incident, ok := m.incidents[id]; ok {
		incident.NotifiedParents = true
	}
	return nil
}

func (m *mockBehaviourRepo) FindByID(ctx context.Context, id string) (*models.BehaviourIncident, error) {
	incident, ok := m.incidents[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return incident, nil
}

func (m *mockBehaviourRepo) List(ctx context.Context, filter models.BehaviourFilter) ([]models.BehaviourIncident, int, error) {
	var out []models.BehaviourIncident
	for _, incident := range m.incidents {
		out = append(out, *incident)
	}
	return out, len(out), nil
}

func newBehaviourFixture(guardianIDs []string, repo *mockBehaviourRepo) (*BehaviourService, *mockNotificationWriter) {
	students := &mockStudentReader{students: map[string]*models.Student{
		"11111111-1111-1111-1111-111111111111": {ID: "11111111-1111-1111-1111-111111111111", FirstName: "Kofi"},
	}}
	writer := &mockNotificationWriter{}
	notifier := NewNotifierService(&mockGuardianLister{ids: guardianIDs}, writer, nil, true, zap.NewNop())
	visibility := NewVisibilityService(&mockGuardianChecker{}, zap.NewNop())
	return NewBehaviourService(repo, students, notifier, visibility, nil, zap.NewNop()), writer
}

func TestReportIncidentNotifiesGuardians(t *testing.T) {
	repo := &mockBehaviourRepo{}
	svc, writer := newBehaviourFixture([]string{"p1", "p2"}, repo)

	incident, err := svc.Report(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, ReportIncidentRequest{
		StudentID:   "11111111-1111-1111-1111-111111111111",
		Description: "fighting in the yard",
		Severity:    "high",
	})
	require.NoError(t, err)
	assert.True(t, incident.NotifiedParents)
	assert.Len(t, writer.created, 2)
	assert.False(t, incident.Date.IsZero(), "date defaults to today")
}

func TestReportIncidentNoGuardians(t *testing.T) {
	repo := &mockBehaviourRepo{}
	svc, writer := newBehaviourFixture(nil, repo)

	incident, err := svc.Report(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, ReportIncidentRequest{
		StudentID:   "11111111-1111-1111-1111-111111111111",
		Description: "late homework",
		Severity:    "low",
	})
	require.NoError(t, err)
	assert.False(t, incident.NotifiedParents, "flag stays unset when nobody was notified")
	assert.Empty(t, writer.created)
}

func TestReportIncidentNotifiedFlagFailureIsNonFatal(t *testing.T) {
	repo := &mockBehaviourRepo{notifiedErr: errors.New("write timeout")}
	svc, writer := newBehaviourFixture([]string{"p1"}, repo)

	incident, err := svc.Report(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, ReportIncidentRequest{
		StudentID:   "11111111-1111-1111-1111-111111111111",
		Description: "skipped class",
		Severity:    "medium",
	})
	require.NoError(t, err)
	assert.False(t, incident.NotifiedParents)
	assert.Len(t, writer.created, 1, "notifications were still delivered")
}

func TestReportIncidentRejectsUnknownSeverity(t *testing.T) {
	svc, _ := newBehaviourFixture(nil, &mockBehaviourRepo{})

	_, err := svc.Report(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, ReportIncidentRequest{
		StudentID:   "11111111-1111-1111-1111-111111111111",
		Description: "whatever",
		Severity:    "catastrophic",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetIncidentParentVisibility(t *testing.T) {
	repo := &mockBehaviourRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{
		"11111111-1111-1111-1111-111111111111": {ID: "11111111-1111-1111-1111-111111111111"},
	}}
	notifier := NewNotifierService(&mockGuardianLister{}, &mockNotificationWriter{}, nil, false, zap.NewNop())
	visibility := NewVisibilityService(&mockGuardianChecker{guardianOf: map[string]string{
		"11111111-1111-1111-1111-111111111111": "p1",
	}}, zap.NewNop())
	svc := NewBehaviourService(repo, students, notifier, visibility, nil, zap.NewNop())

	incident, err := svc.Report(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, ReportIncidentRequest{
		StudentID:   "11111111-1111-1111-1111-111111111111",
		Description: "broke a window",
		Severity:    "medium",
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), models.Actor{ID: "p1", Role: models.RoleParent}, incident.ID)
	assert.NoError(t, err, "guardian of the student may read the incident")

	_, err = svc.Get(context.Background(), models.Actor{ID: "p2", Role: models.RoleParent}, incident.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
