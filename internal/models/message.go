package models

import "time"

// MessageThread groups an ordered conversation between participants.
type MessageThread struct {
	ID        string    `db:"id" json:"id"`
	Subject   string    `db:"subject" json:"subject"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Participants []UserInfo `db:"-" json:"participants,omitempty"`
}

// Message belongs to exactly one thread. ReadBy tracks which participants
// have acknowledged it; the sender is included at creation time.
type Message struct {
	ID       string    `db:"id" json:"id"`
	ThreadID string    `db:"thread_id" json:"thread_id"`
	SenderID *string   `db:"sender_id" json:"sender_id,omitempty"`
	Body     string    `db:"body" json:"body"`
	SentAt   time.Time `db:"sent_at" json:"sent_at"`

	ReadBy []string `db:"-" json:"read_by"`
}
