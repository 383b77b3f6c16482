package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/service"
)

const jwtTestSecret = "jwt-test-secret"

func newJWTRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: jwtTestSecret,
		AccessTokenExpiry: time.Hour,
		Issuer:            "kps-api-test",
	})
	router := gin.New()
	router.GET("/protected", JWT(auth), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return router
}

func issueToken(t *testing.T, userID string, role models.UserRole, expiresAt time.Time) string {
	t.Helper()
	claims := models.JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtTestSecret))
	require.NoError(t, err)
	return token
}

func TestJWTMissingHeader(t *testing.T) {
	router := newJWTRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsNonBearerScheme(t *testing.T) {
	router := newJWTRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	router := newJWTRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	router := newJWTRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "u1", models.RoleParent, time.Now().Add(-time.Minute)))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTSetsClaimsOnSuccess(t *testing.T) {
	router := newJWTRouter()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "u1", models.RoleTeacher, time.Now().Add(time.Hour)))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u1"}`, rec.Body.String())
}
