package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is the frame pushed to connected clients.
type Event struct {
	Type   string `json:"type"`
	Unread int    `json:"unread"`
}

// EventUnreadCount is the only event type emitted over the push channel.
const EventUnreadCount = "unread_count"

// wsConn is the subset of *websocket.Conn the hub writes to. Narrowed for
// tests.
type wsConn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one live push connection for a user. All writes go through the
// send channel so a single goroutine owns the connection.
type Session struct {
	userID string
	conn   wsConn
	send   chan Event
	once   sync.Once
	done   chan struct{}
}

func newSession(userID string, conn wsConn) *Session {
	return &Session{
		userID: userID,
		conn:   conn,
		send:   make(chan Event, 8),
		done:   make(chan struct{}),
	}
}

// UserID returns the authenticated owner of the session.
func (s *Session) UserID() string { return s.userID }

// Close terminates the session's write loop and underlying connection.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// run drains the send channel onto the websocket until the session closes.
// Write failures close the session; the read side notices and unregisters.
func (s *Session) run(writeTimeout, pingInterval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(ev); err != nil {
				logger.Debug("push write failed", zap.String("user_id", s.userID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.Close()
				return
			}
		}
	}
}

// HubConfig tunes session handling.
type HubConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnPerUser int
}

// Hub tracks the live sessions per user. It is the in-process equivalent of
// the per-user broadcast group: delivering to a user means delivering to
// every session registered for that user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	config   HubConfig
	logger   *zap.Logger
}

// NewHub constructs a Hub.
func NewHub(config HubConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.MaxConnPerUser <= 0 {
		config.MaxConnPerUser = 8
	}
	return &Hub{
		sessions: make(map[string]map[*Session]struct{}),
		config:   config,
		logger:   logger,
	}
}

// Register adds a session for the user and starts its write loop. When the
// user already holds the maximum number of sessions the oldest surplus is
// evicted rather than refusing the new connection.
func (h *Hub) Register(userID string, conn wsConn) *Session {
	session := newSession(userID, conn)

	h.mu.Lock()
	set, ok := h.sessions[userID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[userID] = set
	}
	if len(set) >= h.config.MaxConnPerUser {
		for old := range set {
			delete(set, old)
			old.Close()
			break
		}
	}
	set[session] = struct{}{}
	h.mu.Unlock()

	go session.run(h.config.WriteTimeout, h.config.PingInterval, h.logger)
	return session
}

// Unregister removes a session. Safe to call for sessions already removed.
func (h *Hub) Unregister(session *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[session.userID]; ok {
		delete(set, session)
		if len(set) == 0 {
			delete(h.sessions, session.userID)
		}
	}
	h.mu.Unlock()
	session.Close()
}

// DeliveryResult describes the outcome of a push attempt.
type DeliveryResult string

const (
	Delivered        DeliveryResult = "delivered"
	SkippedNoSession DeliveryResult = "skipped_no_session"
	SkippedError     DeliveryResult = "skipped_error"
)

// Deliver enqueues an unread-count event to every live session of the user.
// Events for users without a live session are dropped; there is no replay.
func (h *Hub) Deliver(userID string, unread int) DeliveryResult {
	h.mu.RLock()
	set := h.sessions[userID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return SkippedNoSession
	}

	ev := Event{Type: EventUnreadCount, Unread: unread}
	delivered := false
	for _, s := range targets {
		select {
		case s.send <- ev:
			delivered = true
		default:
			// Slow consumer; drop this event for that session.
		}
	}
	if !delivered {
		return SkippedError
	}
	return Delivered
}

// SessionCount returns the total number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.sessions {
		total += len(set)
	}
	return total
}
