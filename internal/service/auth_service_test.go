package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockAuthRepo struct {
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:  make(map[string]*models.User),
		tokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := m.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
		}
	}
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "kps-api-test",
	})
}

func TestRegisterDefaultsToParent(t *testing.T) {
	svc := newAuthService(newMockAuthRepo())

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "ama",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleParent, user.Role)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret123", user.PasswordHash)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "ama", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterRequest{Username: "ama", Password: "othersecret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLoginAndValidateToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	user, err := svc.Register(context.Background(), models.RegisterRequest{
		Username: "kwame",
		Password: "secret123",
		Role:     models.RoleTeacher,
	})
	require.NoError(t, err)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "kwame", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	user, err := svc.Register(context.Background(), models.RegisterRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)
	user.Active = false

	_, err = svc.Login(context.Background(), models.LoginRequest{Username: "kwame", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.Error(t, err, "a used refresh token cannot be replayed")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "kwame", Password: "secret123"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), resp.RefreshToken, "someone-else")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Logout(context.Background(), resp.RefreshToken, resp.User.ID)
	require.NoError(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(newMockAuthRepo())

	_, err := svc.ValidateToken("not-a-jwt")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
