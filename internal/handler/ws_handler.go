package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/realtime"
	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/response"
)

type unreadSource interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// WSHandler upgrades authenticated clients onto the push channel.
type WSHandler struct {
	auth        *service.AuthService
	hub         *realtime.Hub
	unread      unreadSource
	broadcaster *realtime.Broadcaster
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewWSHandler constructs WSHandler. checkOrigin receives the request and
// decides whether the handshake origin is acceptable.
func NewWSHandler(auth *service.AuthService, hub *realtime.Hub, unread unreadSource, broadcaster *realtime.Broadcaster, checkOrigin func(*http.Request) bool, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		auth:        auth,
		hub:         hub,
		unread:      unread,
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Serve authenticates the `token` query parameter, upgrades the connection
// and registers it with the hub. The server never processes client frames;
// the read loop exists only to detect disconnects.
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "token query parameter required"))
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	session := h.hub.Register(claims.UserID, conn)
	defer h.hub.Unregister(session)

	if h.unread != nil && h.broadcaster != nil {
		if count, err := h.unread.UnreadCount(c.Request.Context(), claims.UserID); err == nil {
			h.broadcaster.PushUnread(c.Request.Context(), claims.UserID, count)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
