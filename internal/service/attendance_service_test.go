package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockAttendanceRepo struct {
	records   []*models.AttendanceRecord
	createErr error
}

func (m *mockAttendanceRepo) Create(ctx context.Context, record *models.AttendanceRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = uuid.NewString()
	m.records = append(m.records, record)
	return nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	var out []models.AttendanceRecord
	for _, record := range m.records {
		out = append(out, *record)
	}
	return out, len(out), nil
}

func TestRecordAttendance(t *testing.T) {
	repo := &mockAttendanceRepo{}
	svc := NewAttendanceService(repo, NewVisibilityService(&mockGuardianChecker{}, zap.NewNop()), nil, zap.NewNop())

	record, err := svc.Record(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, RecordAttendanceRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Date:      time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC),
		Status:    "present",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), record.Date, "date is truncated to midnight")
	require.NotNil(t, record.RecordedBy)
	assert.Equal(t, "t1", *record.RecordedBy)
}

func TestRecordAttendanceDuplicateDay(t *testing.T) {
	repo := &mockAttendanceRepo{createErr: &pq.Error{Code: "23505"}}
	svc := NewAttendanceService(repo, NewVisibilityService(&mockGuardianChecker{}, zap.NewNop()), nil, zap.NewNop())

	_, err := svc.Record(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, RecordAttendanceRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Date:      time.Now(),
		Status:    "absent",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRecordAttendanceRejectsUnknownStatus(t *testing.T) {
	svc := NewAttendanceService(&mockAttendanceRepo{}, NewVisibilityService(&mockGuardianChecker{}, zap.NewNop()), nil, zap.NewNop())

	_, err := svc.Record(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, RecordAttendanceRequest{
		StudentID: "11111111-1111-1111-1111-111111111111",
		Date:      time.Now(),
		Status:    "vacationing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListAttendanceDeniedRoleSeesNothing(t *testing.T) {
	repo := &mockAttendanceRepo{records: []*models.AttendanceRecord{{ID: "a1"}}}
	svc := NewAttendanceService(repo, NewVisibilityService(&mockGuardianChecker{}, zap.NewNop()), nil, zap.NewNop())

	records, pagination, err := svc.List(context.Background(), models.Actor{ID: "x1", Role: models.RoleStaff}, models.AttendanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, pagination.TotalCount)
}
