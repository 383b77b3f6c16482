package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/realtime"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type messageRepo interface {
	CreateThread(ctx context.Context, thread *models.MessageThread) error
	FindThreadByID(ctx context.Context, id string) (*models.MessageThread, error)
	ListThreadsByUser(ctx context.Context, userID string) ([]models.MessageThread, error)
	AddParticipant(ctx context.Context, threadID, userID string) error
	ParticipantIDs(ctx context.Context, threadID string) ([]string, error)
	IsParticipant(ctx context.Context, threadID, userID string) (bool, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) error
	MarkThreadRead(ctx context.Context, threadID, userID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// CreateThreadRequest opens a conversation. Body, when present, becomes
// the first message.
type CreateThreadRequest struct {
	Subject        string   `json:"subject" validate:"required"`
	ParticipantIDs []string `json:"participant_ids"`
	Body           string   `json:"body"`
}

// PostMessageRequest appends a message to an existing thread.
type PostMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

// MessageService implements threaded messaging with per-recipient read
// tracking. Unread counts are pushed over the realtime channel whenever
// they change; a failed push never fails the request.
type MessageService struct {
	messages    messageRepo
	users       userInfoReader
	broadcaster *realtime.Broadcaster
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMessageService constructs MessageService.
func NewMessageService(messages messageRepo, users userInfoReader, broadcaster *realtime.Broadcaster, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		messages:    messages,
		users:       users,
		broadcaster: broadcaster,
		validator:   validate,
		logger:      logger,
	}
}

// CreateThread opens a thread. The creator always participates, even when
// absent from the participant list. Ids that do not resolve to a user are
// skipped without error.
func (s *MessageService) CreateThread(ctx context.Context, actor models.Actor, req CreateThreadRequest) (*models.MessageThread, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject must not be empty")
	}

	thread := &models.MessageThread{Subject: strings.TrimSpace(req.Subject)}
	if err := s.messages.CreateThread(ctx, thread); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create thread")
	}

	members := map[string]struct{}{actor.ID: {}}
	if len(req.ParticipantIDs) > 0 {
		infos, err := s.users.FindInfoByIDs(ctx, req.ParticipantIDs)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve participants")
		}
		for _, info := range infos {
			members[info.ID] = struct{}{}
		}
	}
	for id := range members {
		if err := s.messages.AddParticipant(ctx, thread.ID, id); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add participant")
		}
	}

	if strings.TrimSpace(req.Body) != "" {
		if _, err := s.appendMessage(ctx, actor, thread.ID, req.Body); err != nil {
			return nil, err
		}
	}

	created, err := s.messages.FindThreadByID(ctx, thread.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thread")
	}
	return created, nil
}

// ListThreads returns the threads the actor participates in.
func (s *MessageService) ListThreads(ctx context.Context, actor models.Actor) ([]models.MessageThread, error) {
	threads, err := s.messages.ListThreadsByUser(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list threads")
	}
	return threads, nil
}

// ListMessages returns a thread's messages oldest first. Viewing marks
// every message in the thread read for the actor, so the actor's unread
// count is pushed afterwards.
func (s *MessageService) ListMessages(ctx context.Context, actor models.Actor, threadID string) ([]models.Message, error) {
	if err := s.requireParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListMessages(ctx, threadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}

	if err := s.messages.MarkThreadRead(ctx, threadID, actor.ID); err != nil {
		s.logger.Warn("failed to mark thread read",
			zap.String("thread_id", threadID), zap.String("user_id", actor.ID), zap.Error(err))
	} else {
		for i := range messages {
			if !containsID(messages[i].ReadBy, actor.ID) {
				messages[i].ReadBy = append(messages[i].ReadBy, actor.ID)
			}
		}
		s.pushUnread(ctx, actor.ID)
	}
	return messages, nil
}

// PostMessage appends a message to a thread the actor participates in and
// pushes fresh unread counts to the other participants.
func (s *MessageService) PostMessage(ctx context.Context, actor models.Actor, threadID string, req PostMessageRequest) (*models.Message, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body must not be empty")
	}
	if err := s.requireParticipant(ctx, threadID, actor.ID); err != nil {
		return nil, err
	}
	return s.appendMessage(ctx, actor, threadID, req.Body)
}

// UnreadCount returns how many messages are unread for the actor across
// all threads they participate in.
func (s *MessageService) UnreadCount(ctx context.Context, actor models.Actor) (int, error) {
	count, err := s.messages.UnreadCount(ctx, actor.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread messages")
	}
	return count, nil
}

func (s *MessageService) appendMessage(ctx context.Context, actor models.Actor, threadID, body string) (*models.Message, error) {
	senderID := actor.ID
	message := &models.Message{
		ThreadID: threadID,
		SenderID: &senderID,
		Body:     strings.TrimSpace(body),
	}
	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create message")
	}
	if err := s.messages.MarkRead(ctx, message.ID, actor.ID); err != nil {
		s.logger.Warn("failed to mark own message read",
			zap.String("message_id", message.ID), zap.Error(err))
	}
	message.ReadBy = []string{actor.ID}

	participants, err := s.messages.ParticipantIDs(ctx, threadID)
	if err != nil {
		s.logger.Warn("failed to load participants for push",
			zap.String("thread_id", threadID), zap.Error(err))
		return message, nil
	}
	for _, id := range participants {
		if id == actor.ID {
			continue
		}
		s.pushUnread(ctx, id)
	}
	return message, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, threadID, userID string) error {
	if _, err := s.messages.FindThreadByID(ctx, threadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "thread not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load thread")
	}
	ok, err := s.messages.IsParticipant(ctx, threadID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check participation")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this thread")
	}
	return nil
}

func (s *MessageService) pushUnread(ctx context.Context, userID string) {
	if s.broadcaster == nil {
		return
	}
	count, err := s.messages.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to compute unread count for push",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.broadcaster.PushUnread(ctx, userID, count)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
