package models

import "time"

// Notification is addressed to exactly one user. Rows are created only by
// the guardian fan-out, never directly through the API.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Link      string    `db:"link" json:"link,omitempty"`
	Read      bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
