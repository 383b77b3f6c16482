package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	frames   chan Event
	writeErr error
	closed   atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Event, 16)}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	if ev, ok := v.(Event); ok {
		c.frames <- ev
	}
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) waitFrame(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-c.frames:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a pushed frame")
		return Event{}
	}
}

func newTestHub() *Hub {
	return NewHub(HubConfig{
		WriteTimeout:   time.Second,
		PingInterval:   time.Minute,
		MaxConnPerUser: 2,
	}, zap.NewNop())
}

func TestDeliverReachesUserSessions(t *testing.T) {
	hub := newTestHub()
	conn := newFakeConn()
	session := hub.Register("u1", conn)
	defer hub.Unregister(session)

	result := hub.Deliver("u1", 3)
	assert.Equal(t, Delivered, result)

	ev := conn.waitFrame(t)
	assert.Equal(t, EventUnreadCount, ev.Type)
	assert.Equal(t, 3, ev.Unread)
}

func TestDeliverSkipsOfflineUser(t *testing.T) {
	hub := newTestHub()
	assert.Equal(t, SkippedNoSession, hub.Deliver("nobody", 1))
}

func TestDeliverFansOutToAllSessionsOfUser(t *testing.T) {
	hub := newTestHub()
	first := newFakeConn()
	second := newFakeConn()
	other := newFakeConn()
	s1 := hub.Register("u1", first)
	s2 := hub.Register("u1", second)
	s3 := hub.Register("u2", other)
	defer hub.Unregister(s1)
	defer hub.Unregister(s2)
	defer hub.Unregister(s3)

	require.Equal(t, Delivered, hub.Deliver("u1", 5))
	assert.Equal(t, 5, first.waitFrame(t).Unread)
	assert.Equal(t, 5, second.waitFrame(t).Unread)

	select {
	case <-other.frames:
		t.Fatal("event leaked to another user's session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterEvictsSurplusSessions(t *testing.T) {
	hub := newTestHub()
	first := newFakeConn()
	second := newFakeConn()
	third := newFakeConn()
	hub.Register("u1", first)
	hub.Register("u1", second)
	require.Equal(t, 2, hub.SessionCount())

	hub.Register("u1", third)
	assert.Equal(t, 2, hub.SessionCount(), "the cap holds after a surplus connect")
	evicted := first.closed.Load() || second.closed.Load()
	assert.True(t, evicted, "an older session was closed to make room")
}

func TestUnregisterForgetsSession(t *testing.T) {
	hub := newTestHub()
	conn := newFakeConn()
	session := hub.Register("u1", conn)
	hub.Unregister(session)

	assert.Zero(t, hub.SessionCount())
	assert.True(t, conn.closed.Load())
	assert.Equal(t, SkippedNoSession, hub.Deliver("u1", 1))
	assert.NotPanics(t, func() { hub.Unregister(session) })
}

func TestWriteFailureClosesSession(t *testing.T) {
	hub := newTestHub()
	conn := newFakeConn()
	conn.writeErr = errors.New("broken pipe")
	session := hub.Register("u1", conn)
	defer hub.Unregister(session)

	hub.Deliver("u1", 1)

	assert.Eventually(t, func() bool {
		return conn.closed.Load()
	}, time.Second, 10*time.Millisecond)
}

type countingRecorder struct {
	results []DeliveryResult
}

func (r *countingRecorder) ObservePush(result DeliveryResult) {
	r.results = append(r.results, result)
}

func TestBroadcasterRecordsOutcome(t *testing.T) {
	hub := newTestHub()
	recorder := &countingRecorder{}
	broadcaster := NewBroadcaster(hub, nil, recorder, zap.NewNop())

	broadcaster.PushUnread(context.Background(), "offline", 2)
	require.Len(t, recorder.results, 1)
	assert.Equal(t, SkippedNoSession, recorder.results[0])

	conn := newFakeConn()
	session := hub.Register("u1", conn)
	defer hub.Unregister(session)
	broadcaster.PushUnread(context.Background(), "u1", 4)
	require.Len(t, recorder.results, 2)
	assert.Equal(t, Delivered, recorder.results[1])
	assert.Equal(t, 4, conn.waitFrame(t).Unread)
}

type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Publish(ctx context.Context, userID string, unread int) error {
	p.calls++
	return p.err
}

func TestBroadcasterPublishLeavesOutcomeToSubscriber(t *testing.T) {
	hub := newTestHub()
	recorder := &countingRecorder{}
	publisher := &fakePublisher{}
	broadcaster := NewBroadcaster(hub, publisher, recorder, zap.NewNop())

	conn := newFakeConn()
	session := hub.Register("u1", conn)
	defer hub.Unregister(session)

	broadcaster.PushUnread(context.Background(), "u1", 2)

	assert.Equal(t, 1, publisher.calls)
	assert.Empty(t, recorder.results, "the subscriber records the outcome, not the publisher")
	select {
	case <-conn.frames:
		t.Fatal("local delivery must come through the subscriber, not the publish path")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterPublishFailureFallsBackLocally(t *testing.T) {
	hub := newTestHub()
	recorder := &countingRecorder{}
	publisher := &fakePublisher{err: errors.New("redis down")}
	broadcaster := NewBroadcaster(hub, publisher, recorder, zap.NewNop())

	conn := newFakeConn()
	session := hub.Register("u1", conn)
	defer hub.Unregister(session)

	broadcaster.PushUnread(context.Background(), "u1", 6)

	require.Len(t, recorder.results, 1)
	assert.Equal(t, Delivered, recorder.results[0])
	assert.Equal(t, 6, conn.waitFrame(t).Unread)
}

func TestNilBroadcasterIsSafe(t *testing.T) {
	var broadcaster *Broadcaster
	assert.NotPanics(t, func() { broadcaster.PushUnread(context.Background(), "u1", 1) })
}
