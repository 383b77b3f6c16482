package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockDashboardStudents struct {
	children map[string][]models.Student
	active   int
}

func (m *mockDashboardStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	children := m.children[filter.GuardianID]
	return children, len(children), nil
}

func (m *mockDashboardStudents) CountActive(ctx context.Context) (int, error) {
	return m.active, nil
}

type mockDashboardUsers struct {
	byRole map[models.UserRole]int
}

func (m *mockDashboardUsers) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	return m.byRole[role], nil
}

type mockDashboardClasses struct {
	total     int
	byTeacher map[string][]models.SchoolClass
}

func (m *mockDashboardClasses) Count(ctx context.Context) (int, error) {
	return m.total, nil
}

func (m *mockDashboardClasses) ListByTeacher(ctx context.Context, teacherID string) ([]models.SchoolClass, error) {
	return m.byTeacher[teacherID], nil
}

type mockDashboardIncidents struct {
	recent []models.BehaviourIncident
}

func (m *mockDashboardIncidents) Recent(ctx context.Context, limit int) ([]models.BehaviourIncident, error) {
	if len(m.recent) > limit {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

type fixedCounter struct{ n int }

func (c *fixedCounter) UnreadCount(ctx context.Context, userID string) (int, error) {
	return c.n, nil
}

func (c *fixedCounter) CountUnreadByUser(ctx context.Context, userID string) (int, error) {
	return c.n, nil
}

func newDashboardService() *DashboardService {
	return NewDashboardService(
		&mockDashboardStudents{
			active: 120,
			children: map[string][]models.Student{
				"p1": {{ID: "s1", FirstName: "Amina"}, {ID: "s2", FirstName: "Kofi"}},
			},
		},
		&mockDashboardUsers{byRole: map[models.UserRole]int{
			models.RoleTeacher: 9,
			models.RoleParent:  80,
		}},
		&mockDashboardClasses{
			total:     6,
			byTeacher: map[string][]models.SchoolClass{"t1": {{ID: "c1", Name: "P5"}}},
		},
		&mockDashboardIncidents{recent: []models.BehaviourIncident{{ID: "i1"}}},
		&fixedCounter{n: 3},
		&fixedCounter{n: 7},
		zap.NewNop(),
	)
}

func TestDashboardAdminView(t *testing.T) {
	svc := newDashboardService()

	dashboard, err := svc.Build(context.Background(), models.Actor{ID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.NotNil(t, dashboard.Admin)
	assert.Nil(t, dashboard.Teacher)
	assert.Nil(t, dashboard.Parent)
	assert.Equal(t, 120, dashboard.Admin.ActiveStudents)
	assert.Equal(t, 9, dashboard.Admin.Teachers)
	assert.Equal(t, 80, dashboard.Admin.Parents)
	assert.Equal(t, 6, dashboard.Admin.Classes)
	assert.Len(t, dashboard.Admin.RecentIncidents, 1)
}

func TestDashboardStaffGetsSchoolSummary(t *testing.T) {
	svc := newDashboardService()

	dashboard, err := svc.Build(context.Background(), models.Actor{ID: "st1", Role: models.RoleStaff})
	require.NoError(t, err)
	assert.NotNil(t, dashboard.Admin)
}

func TestDashboardTeacherView(t *testing.T) {
	svc := newDashboardService()

	dashboard, err := svc.Build(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.NotNil(t, dashboard.Teacher)
	assert.Nil(t, dashboard.Admin)
	require.Len(t, dashboard.Teacher.Classes, 1)
	assert.Equal(t, "P5", dashboard.Teacher.Classes[0].Name)
}

func TestDashboardParentView(t *testing.T) {
	svc := newDashboardService()

	dashboard, err := svc.Build(context.Background(), models.Actor{ID: "p1", Role: models.RoleParent})
	require.NoError(t, err)
	require.NotNil(t, dashboard.Parent)
	assert.Len(t, dashboard.Parent.Children, 2)
	assert.Equal(t, 3, dashboard.Parent.UnreadMessages)
	assert.Equal(t, 7, dashboard.Parent.UnreadNotifications)
}

func TestDashboardUnknownRoleDenied(t *testing.T) {
	svc := newDashboardService()

	_, err := svc.Build(context.Background(), models.Actor{ID: "x1", Role: "AUDITOR"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
