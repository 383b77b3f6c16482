package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestNotificationListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications WHERE user_id = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT .+ FROM notifications WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs("p1", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "message", "link", "is_read", "created_at"}).
			AddRow("n2", "p1", "Incident reported for Kofi", "Fighting", "/students/s1", false, time.Now()).
			AddRow("n1", "p1", "New grade for Kofi", "Midterm - 80", "", true, time.Now()))

	notifications, total, err := repo.ListByUser(context.Background(), "p1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, notifications, 2)
	assert.Equal(t, "n2", notifications[0].ID)
	assert.False(t, notifications[0].Read)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationMarkRead(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE id = \$1`).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRead(context.Background(), "n1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationCountUnreadByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications WHERE user_id = \$1 AND is_read = FALSE`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountUnreadByUser(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(assert.AnError))
	assert.False(t, IsUniqueViolation(nil))
}
