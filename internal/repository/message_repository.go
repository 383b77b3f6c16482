package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kps-school/kps-api/internal/models"
)

// MessageRepository manages threads, messages and per-user read marks.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateThread inserts a thread row.
func (r *MessageRepository) CreateThread(ctx context.Context, thread *models.MessageThread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	thread.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO message_threads (id, subject, created_at) VALUES (:id, :subject, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, thread); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// FindThreadByID returns a thread with participants populated.
func (r *MessageRepository) FindThreadByID(ctx context.Context, id string) (*models.MessageThread, error) {
	var thread models.MessageThread
	const query = `SELECT id, subject, created_at FROM message_threads WHERE id = $1`
	if err := r.db.GetContext(ctx, &thread, query, id); err != nil {
		return nil, err
	}
	participants, err := r.Participants(ctx, id)
	if err != nil {
		return nil, err
	}
	thread.Participants = participants
	return &thread, nil
}

// ListThreadsByUser returns threads the user participates in, newest first,
// with participants populated.
func (r *MessageRepository) ListThreadsByUser(ctx context.Context, userID string) ([]models.MessageThread, error) {
	const query = `SELECT t.id, t.subject, t.created_at
        FROM message_threads t
        JOIN thread_participants tp ON tp.thread_id = t.id
        WHERE tp.user_id = $1
        ORDER BY t.created_at DESC`
	var threads []models.MessageThread
	if err := r.db.SelectContext(ctx, &threads, query, userID); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	for i := range threads {
		participants, err := r.Participants(ctx, threads[i].ID)
		if err != nil {
			return nil, err
		}
		threads[i].Participants = participants
	}
	return threads, nil
}

// AddParticipant links a user to a thread. Adding twice is a no-op.
func (r *MessageRepository) AddParticipant(ctx context.Context, threadID, userID string) error {
	const query = `INSERT INTO thread_participants (thread_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, threadID, userID); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// Participants returns the users participating in a thread.
func (r *MessageRepository) Participants(ctx context.Context, threadID string) ([]models.UserInfo, error) {
	const query = `SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.role, u.is_superuser
        FROM users u
        JOIN thread_participants tp ON tp.user_id = u.id
        WHERE tp.thread_id = $1
        ORDER BY u.username`
	var participants []models.UserInfo
	if err := r.db.SelectContext(ctx, &participants, query, threadID); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// ParticipantIDs returns the ids of a thread's participants.
func (r *MessageRepository) ParticipantIDs(ctx context.Context, threadID string) ([]string, error) {
	const query = `SELECT user_id FROM thread_participants WHERE thread_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, threadID); err != nil {
		return nil, fmt.Errorf("list participant ids: %w", err)
	}
	return ids, nil
}

// IsParticipant reports whether userID participates in the thread.
func (r *MessageRepository) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM thread_participants WHERE thread_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, threadID, userID); err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

// CreateMessage inserts a message row.
func (r *MessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.SentAt = time.Now().UTC()
	const query = `INSERT INTO messages (id, thread_id, sender_id, body, sent_at)
        VALUES (:id, :thread_id, :sender_id, :body, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// ListMessages returns thread messages ordered by send time ascending with
// read marks populated.
func (r *MessageRepository) ListMessages(ctx context.Context, threadID string) ([]models.Message, error) {
	const query = `SELECT id, thread_id, sender_id, body, sent_at FROM messages WHERE thread_id = $1 ORDER BY sent_at ASC, id ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, threadID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	type readMark struct {
		MessageID string `db:"message_id"`
		UserID    string `db:"user_id"`
	}
	var marks []readMark
	const readsQuery = `SELECT message_id, user_id FROM message_reads WHERE message_id = ANY($1)`
	if err := r.db.SelectContext(ctx, &marks, readsQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list read marks: %w", err)
	}
	byMessage := make(map[string][]string, len(messages))
	for _, mark := range marks {
		byMessage[mark.MessageID] = append(byMessage[mark.MessageID], mark.UserID)
	}
	for i := range messages {
		readBy := byMessage[messages[i].ID]
		if readBy == nil {
			readBy = []string{}
		}
		messages[i].ReadBy = readBy
	}
	return messages, nil
}

// MarkRead records that the user has read the message. Marking twice is a
// no-op.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string) error {
	const query = `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, messageID, userID); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// MarkThreadRead records the user as having read every message currently in
// the thread.
func (r *MessageRepository) MarkThreadRead(ctx context.Context, threadID, userID string) error {
	const query = `INSERT INTO message_reads (message_id, user_id, read_at)
        SELECT m.id, $2, NOW() FROM messages m WHERE m.thread_id = $1
        ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, threadID, userID); err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	return nil
}

// UnreadCount returns the number of messages in the user's threads the user
// has not read.
func (r *MessageRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*)
        FROM messages m
        JOIN thread_participants tp ON tp.thread_id = m.thread_id AND tp.user_id = $1
        WHERE NOT EXISTS (
            SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $1
        )`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}
