package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/response"
)

type messageService interface {
	ListThreads(ctx context.Context, actor models.Actor) ([]models.MessageThread, error)
	CreateThread(ctx context.Context, actor models.Actor, req service.CreateThreadRequest) (*models.MessageThread, error)
	ListMessages(ctx context.Context, actor models.Actor, threadID string) ([]models.Message, error)
	PostMessage(ctx context.Context, actor models.Actor, threadID string, req service.PostMessageRequest) (*models.Message, error)
	UnreadCount(ctx context.Context, actor models.Actor) (int, error)
}

// MessageHandler exposes messaging endpoints.
type MessageHandler struct {
	messages messageService
}

// NewMessageHandler constructs MessageHandler.
func NewMessageHandler(messages messageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// ListThreads godoc
// @Summary List threads the caller participates in
// @Tags Messaging
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /threads [get]
func (h *MessageHandler) ListThreads(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	threads, err := h.messages.ListThreads(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, threads, nil)
}

// CreateThread godoc
// @Summary Open a thread
// @Tags Messaging
// @Accept json
// @Produce json
// @Param payload body service.CreateThreadRequest true "Thread payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /threads [post]
func (h *MessageHandler) CreateThread(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid thread payload"))
		return
	}
	thread, err := h.messages.CreateThread(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, thread)
}

// ListMessages godoc
// @Summary List a thread's messages, oldest first
// @Description Viewing marks every message in the thread read for the caller.
// @Tags Messaging
// @Produce json
// @Param id path string true "Thread ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /threads/{id}/messages [get]
func (h *MessageHandler) ListMessages(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	messages, err := h.messages.ListMessages(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// PostMessage godoc
// @Summary Post a message to a thread
// @Tags Messaging
// @Accept json
// @Produce json
// @Param id path string true "Thread ID"
// @Param payload body service.PostMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /threads/{id}/messages [post]
func (h *MessageHandler) PostMessage(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid message payload"))
		return
	}
	message, err := h.messages.PostMessage(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// UnreadCount godoc
// @Summary Count own unread messages
// @Tags Messaging
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /messages/unread-count [get]
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count, err := h.messages.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}
