package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/realtime"
	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

const wsTestSecret = "ws-test-secret"

func newWSAuthService() *service.AuthService {
	return service.NewAuthService(nil, nil, nil, service.AuthConfig{
		AccessTokenSecret: wsTestSecret,
		AccessTokenExpiry: time.Hour,
		Issuer:            "kps-api-test",
	})
}

func signAccessToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := models.JWTClaims{
		UserID: userID,
		Role:   models.RoleParent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(wsTestSecret))
	require.NoError(t, err)
	return token
}

func TestWSServeRejectsMissingToken(t *testing.T) {
	handler := NewWSHandler(newWSAuthService(), nil, nil, nil, func(*http.Request) bool { return true }, nil)

	c, rec := newGinContext(http.MethodGet, "/ws", nil)
	handler.Serve(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, envelope.Error.Code)
}

func TestWSServeRejectsGarbageToken(t *testing.T) {
	handler := NewWSHandler(newWSAuthService(), nil, nil, nil, func(*http.Request) bool { return true }, nil)

	c, rec := newGinContext(http.MethodGet, "/ws?token=not-a-jwt", nil)
	handler.Serve(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSServeRejectsExpiredToken(t *testing.T) {
	handler := NewWSHandler(newWSAuthService(), nil, nil, nil, func(*http.Request) bool { return true }, nil)

	token := signAccessToken(t, "u1", time.Now().Add(-time.Minute))
	c, rec := newGinContext(http.MethodGet, "/ws?token="+token, nil)
	handler.Serve(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWSServeValidTokenReachesUpgrade(t *testing.T) {
	handler := NewWSHandler(newWSAuthService(), nil, nil, nil, func(*http.Request) bool { return true }, nil)

	token := signAccessToken(t, "u1", time.Now().Add(time.Hour))
	c, rec := newGinContext(http.MethodGet, "/ws?token="+token, nil)
	handler.Serve(c)

	// The request carries no websocket handshake headers, so the upgrader
	// rejects it. A 400 here means authentication already succeeded.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pushRecorder struct {
	mu      sync.Mutex
	results []realtime.DeliveryResult
}

func (r *pushRecorder) ObservePush(result realtime.DeliveryResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *pushRecorder) recorded() []realtime.DeliveryResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.DeliveryResult(nil), r.results...)
}

type fixedUnreadSource struct {
	count int
}

func (f fixedUnreadSource) UnreadCount(context.Context, string) (int, error) {
	return f.count, nil
}

func TestWSServeSendsInitialUnreadCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(realtime.HubConfig{}, nil)
	recorder := &pushRecorder{}
	broadcaster := realtime.NewBroadcaster(hub, nil, recorder, nil)
	handler := NewWSHandler(newWSAuthService(), hub, fixedUnreadSource{count: 5}, broadcaster, func(*http.Request) bool { return true }, nil)

	router := gin.New()
	router.GET("/ws", handler.Serve)
	server := httptest.NewServer(router)
	defer server.Close()

	token := signAccessToken(t, "u1", time.Now().Add(time.Hour))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event realtime.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, realtime.EventUnreadCount, event.Type)
	assert.Equal(t, 5, event.Unread)

	assert.Eventually(t, func() bool {
		results := recorder.recorded()
		return len(results) == 1 && results[0] == realtime.Delivered
	}, time.Second, 10*time.Millisecond)
}
