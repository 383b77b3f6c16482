package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kps-school/kps-api/internal/middleware"
	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type fakeNotificationSrv struct {
	notifications []models.Notification
	notification  *models.Notification
	unread        int
	err           error
	lastActor models.Actor
	lastID    string
	lastPage  int
	lastSize  int
}

func (f *fakeNotificationSrv) List(_ context.Context, actor models.Actor, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	f.lastActor = actor
	f.lastPage = page
	f.lastSize = pageSize
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.notifications, &models.Pagination{Page: page, PageSize: pageSize}, nil
}

func (f *fakeNotificationSrv) MarkRead(_ context.Context, actor models.Actor, id string) (*models.Notification, error) {
	f.lastActor = actor
	f.lastID = id
	return f.notification, f.err
}

func (f *fakeNotificationSrv) UnreadCount(_ context.Context, actor models.Actor) (int, error) {
	f.lastActor = actor
	return f.unread, f.err
}

func TestNotificationHandlerListRequiresAuth(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotificationSrv{})

	c, rec := newGinContext(http.MethodGet, "/notifications", nil)
	handler.List(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, envelope.Error.Code)
}

func TestNotificationHandlerListParsesPaging(t *testing.T) {
	srv := &fakeNotificationSrv{}
	handler := NewNotificationHandler(srv)

	c, rec := newGinContext(http.MethodGet, "/notifications?page=2&limit=5", nil)
	c.Set(middleware.ContextUserKey, authedClaims("p1", models.RoleParent))
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p1", srv.lastActor.ID)
	assert.Equal(t, 2, srv.lastPage)
	assert.Equal(t, 5, srv.lastSize)
}

func TestNotificationHandlerMarkReadUsesPathParam(t *testing.T) {
	srv := &fakeNotificationSrv{notification: &models.Notification{ID: "n1", Read: true}}
	handler := NewNotificationHandler(srv)

	c, rec := newGinContext(http.MethodPost, "/notifications/n1/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n1"}}
	c.Set(middleware.ContextUserKey, authedClaims("p1", models.RoleParent))
	handler.MarkRead(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n1", srv.lastID)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Data["is_read"])
}

func TestNotificationHandlerMarkReadPropagatesForbidden(t *testing.T) {
	srv := &fakeNotificationSrv{err: appErrors.Clone(appErrors.ErrForbidden, "not the addressee")}
	handler := NewNotificationHandler(srv)

	c, rec := newGinContext(http.MethodPost, "/notifications/n1/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "n1"}}
	c.Set(middleware.ContextUserKey, authedClaims("p2", models.RoleParent))
	handler.MarkRead(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestNotificationHandlerUnreadCountEnvelope(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotificationSrv{unread: 7})

	c, rec := newGinContext(http.MethodGet, "/notifications/unread-count", nil)
	c.Set(middleware.ContextUserKey, authedClaims("p1", models.RoleParent))
	handler.UnreadCount(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(7), envelope.Data["unread"])
}
