package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type mockMessageRepo struct {
	threads      map[string]*models.MessageThread
	participants map[string]map[string]struct{}
	messages     map[string][]*models.Message
	reads        map[string]map[string]struct{}
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{
		threads:      make(map[string]*models.MessageThread),
		participants: make(map[string]map[string]struct{}),
		messages:     make(map[string][]*models.Message),
		reads:        make(map[string]map[string]struct{}),
	}
}

func (m *mockMessageRepo) CreateThread(ctx context.Context, thread *models.MessageThread) error {
	thread.ID = uuid.NewString()
	thread.CreatedAt = time.Now().UTC()
	m.threads[thread.ID] = thread
	m.participants[thread.ID] = make(map[string]struct{})
	return nil
}

func (m *mockMessageRepo) FindThreadByID(ctx context.Context, id string) (*models.MessageThread, error) {
	thread, ok := m.threads[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *thread
	for userID := range m.participants[id] {
		out.Participants = append(out.Participants, models.UserInfo{ID: userID})
	}
	return &out, nil
}

func (m *mockMessageRepo) ListThreadsByUser(ctx context.Context, userID string) ([]models.MessageThread, error) {
	var out []models.MessageThread
	for id, thread := range m.threads {
		if _, ok := m.participants[id][userID]; ok {
			out = append(out, *thread)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) AddParticipant(ctx context.Context, threadID, userID string) error {
	m.participants[threadID][userID] = struct{}{}
	return nil
}

func (m *mockMessageRepo) ParticipantIDs(ctx context.Context, threadID string) ([]string, error) {
	var ids []string
	for id := range m.participants[threadID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockMessageRepo) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	_, ok := m.participants[threadID][userID]
	return ok, nil
}

func (m *mockMessageRepo) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = uuid.NewString()
	message.SentAt = time.Now().UTC()
	m.messages[message.ThreadID] = append(m.messages[message.ThreadID], message)
	return nil
}

func (m *mockMessageRepo) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range m.messages[threadID] {
		copied := *msg
		copied.ReadBy = []string{}
		for userID := range m.reads[msg.ID] {
			copied.ReadBy = append(copied.ReadBy, userID)
		}
		out = append(out, copied)
	}
	return out, nil
}

func (m *mockMessageRepo) MarkRead(ctx context.Context, messageID, userID string) error {
	if m.reads[messageID] == nil {
		m.reads[messageID] = make(map[string]struct{})
	}
	m.reads[messageID][userID] = struct{}{}
	return nil
}

func (m *mockMessageRepo) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	for _, msg := range m.messages[threadID] {
		if err := m.MarkRead(ctx, msg.ID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockMessageRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	count := 0
	for threadID, msgs := range m.messages {
		if _, ok := m.participants[threadID][userID]; !ok {
			continue
		}
		for _, msg := range msgs {
			if _, read := m.reads[msg.ID][userID]; !read {
				count++
			}
		}
	}
	return count, nil
}

type mockUserReader struct {
	users map[string]models.UserInfo
}

func (m *mockUserReader) FindInfoByIDs(ctx context.Context, ids []string) ([]models.UserInfo, error) {
	var out []models.UserInfo
	for _, id := range ids {
		if info, ok := m.users[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func newMessageService(repo *mockMessageRepo, users *mockUserReader) *MessageService {
	return NewMessageService(repo, users, nil, nil, zap.NewNop())
}

func TestCreateThreadRejectsEmptySubject(t *testing.T) {
	svc := newMessageService(newMockMessageRepo(), &mockUserReader{})

	_, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{Subject: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateThreadAlwaysIncludesCreator(t *testing.T) {
	repo := newMockMessageRepo()
	users := &mockUserReader{users: map[string]models.UserInfo{
		"u2": {ID: "u2", Role: models.RoleParent},
	}}
	svc := newMessageService(repo, users)

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{
		Subject:        "Homework question",
		ParticipantIDs: []string{"u2", "ghost"},
	})
	require.NoError(t, err)

	ids, _ := repo.ParticipantIDs(context.Background(), thread.ID)
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids, "creator joined, unknown id skipped")
}

func TestCreateThreadWithInitialMessage(t *testing.T) {
	repo := newMockMessageRepo()
	users := &mockUserReader{users: map[string]models.UserInfo{
		"u2": {ID: "u2"},
	}}
	svc := newMessageService(repo, users)

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{
		Subject:        "Trip consent",
		ParticipantIDs: []string{"u2"},
		Body:           "Please sign the form.",
	})
	require.NoError(t, err)

	messages, err := svc.ListMessages(context.Background(), models.Actor{ID: "u2"}, thread.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Please sign the form.", messages[0].Body)
	assert.Contains(t, messages[0].ReadBy, "u1", "sender reads own message at creation")

	unreadSender, _ := svc.UnreadCount(context.Background(), models.Actor{ID: "u1"})
	assert.Zero(t, unreadSender)
}

func TestListMessagesRequiresParticipation(t *testing.T) {
	repo := newMockMessageRepo()
	svc := newMessageService(repo, &mockUserReader{})

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{Subject: "Private"})
	require.NoError(t, err)

	_, err = svc.ListMessages(context.Background(), models.Actor{ID: "intruder"}, thread.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListMessagesUnknownThread(t *testing.T) {
	svc := newMessageService(newMockMessageRepo(), &mockUserReader{})

	_, err := svc.ListMessages(context.Background(), models.Actor{ID: "u1"}, "no-such-thread")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPostMessageUnknownThread(t *testing.T) {
	svc := newMessageService(newMockMessageRepo(), &mockUserReader{})

	_, err := svc.PostMessage(context.Background(), models.Actor{ID: "u1"}, "no-such-thread", PostMessageRequest{Body: "hello"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListMessagesMarksThreadRead(t *testing.T) {
	repo := newMockMessageRepo()
	users := &mockUserReader{users: map[string]models.UserInfo{"u2": {ID: "u2"}}}
	svc := newMessageService(repo, users)

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{
		Subject:        "Updates",
		ParticipantIDs: []string{"u2"},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.PostMessage(context.Background(), models.Actor{ID: "u1"}, thread.ID, PostMessageRequest{Body: "update"})
		require.NoError(t, err)
	}

	unread, err := svc.UnreadCount(context.Background(), models.Actor{ID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	messages, err := svc.ListMessages(context.Background(), models.Actor{ID: "u2"}, thread.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
	for _, msg := range messages {
		assert.Contains(t, msg.ReadBy, "u2")
	}

	unread, err = svc.UnreadCount(context.Background(), models.Actor{ID: "u2"})
	require.NoError(t, err)
	assert.Zero(t, unread, "viewing the thread clears its unread messages")
}

func TestPostMessageRejectsEmptyBody(t *testing.T) {
	repo := newMockMessageRepo()
	svc := newMessageService(repo, &mockUserReader{})

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{Subject: "x"})
	require.NoError(t, err)

	_, err = svc.PostMessage(context.Background(), models.Actor{ID: "u1"}, thread.ID, PostMessageRequest{Body: "  \n "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPostMessageRequiresParticipation(t *testing.T) {
	repo := newMockMessageRepo()
	svc := newMessageService(repo, &mockUserReader{})

	thread, err := svc.CreateThread(context.Background(), models.Actor{ID: "u1"}, CreateThreadRequest{Subject: "x"})
	require.NoError(t, err)

	_, err = svc.PostMessage(context.Background(), models.Actor{ID: "outsider"}, thread.ID, PostMessageRequest{Body: "hi"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
