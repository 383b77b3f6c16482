package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockGuardianChecker struct {
	guardianOf map[string]string
	err        error
}

func (m *mockGuardianChecker) IsGuardian(ctx context.Context, studentID, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.guardianOf[studentID] == userID, nil
}

func TestVisibilityScope(t *testing.T) {
	svc := NewVisibilityService(&mockGuardianChecker{}, zap.NewNop())

	assert.Equal(t, ScopeFull, svc.Scope(models.Actor{Role: models.RoleAdmin}))
	assert.Equal(t, ScopeFull, svc.Scope(models.Actor{Role: models.RoleTeacher}))
	assert.Equal(t, ScopeGuardian, svc.Scope(models.Actor{Role: models.RoleParent}))
	assert.Equal(t, ScopeNone, svc.Scope(models.Actor{Role: models.RoleStaff}))
	assert.Equal(t, ScopeNone, svc.Scope(models.Actor{Role: "AUDITOR"}))
	assert.Equal(t, ScopeFull, svc.Scope(models.Actor{Role: models.RoleStaff, Superuser: true}))
}

func TestVisibilityAuthorizeFullScope(t *testing.T) {
	svc := NewVisibilityService(&mockGuardianChecker{}, zap.NewNop())

	err := svc.Authorize(context.Background(), models.Actor{ID: "t1", Role: models.RoleTeacher}, StudentSelf("s1"))
	assert.NoError(t, err)
}

func TestVisibilityAuthorizeParent(t *testing.T) {
	checker := &mockGuardianChecker{guardianOf: map[string]string{"s1": "p1"}}
	svc := NewVisibilityService(checker, zap.NewNop())
	parent := models.Actor{ID: "p1", Role: models.RoleParent}

	assert.NoError(t, svc.Authorize(context.Background(), parent, StudentSelf("s1")))

	err := svc.Authorize(context.Background(), parent, StudentSelf("s2"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestVisibilityAuthorizeFailsClosed(t *testing.T) {
	svc := NewVisibilityService(&mockGuardianChecker{}, zap.NewNop())
	parent := models.Actor{ID: "p1", Role: models.RoleParent}

	assert.Error(t, svc.Authorize(context.Background(), parent, nil))

	failing := StudentRef(func(context.Context) (string, error) {
		return "", errors.New("relation read failed")
	})
	assert.Error(t, svc.Authorize(context.Background(), parent, failing))

	empty := StudentRef(func(context.Context) (string, error) { return "", nil })
	assert.Error(t, svc.Authorize(context.Background(), parent, empty))
}

func TestVisibilityAuthorizeDeniesUnknownRole(t *testing.T) {
	checker := &mockGuardianChecker{guardianOf: map[string]string{"s1": "x1"}}
	svc := NewVisibilityService(checker, zap.NewNop())

	err := svc.Authorize(context.Background(), models.Actor{ID: "x1", Role: models.RoleStaff}, StudentSelf("s1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
