package realtime

import (
	"context"

	"go.uber.org/zap"
)

// Publisher fans an unread-count event out across API instances. The Redis
// bridge implements it; a nil Publisher means local-only delivery.
type Publisher interface {
	Publish(ctx context.Context, userID string, unread int) error
}

// Recorder observes push outcomes. Implemented by the metrics service.
type Recorder interface {
	ObservePush(result DeliveryResult)
}

// Broadcaster is the best-effort push abstraction the write paths call.
// Failures are logged and swallowed; a write never fails because a push did.
type Broadcaster struct {
	hub       *Hub
	publisher Publisher
	recorder  Recorder
	logger    *zap.Logger
}

// NewBroadcaster constructs a Broadcaster. publisher and recorder may be nil.
func NewBroadcaster(hub *Hub, publisher Publisher, recorder Recorder, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{hub: hub, publisher: publisher, recorder: recorder, logger: logger}
}

// PushUnread delivers the user's unread message count to any live session.
// At-most-once: offline users never receive the event and must re-derive
// their count on next connect.
func (b *Broadcaster) PushUnread(ctx context.Context, userID string, unread int) {
	if b == nil || b.hub == nil {
		return
	}

	if b.publisher != nil {
		err := b.publisher.Publish(ctx, userID, unread)
		if err == nil {
			// The event comes back through every instance's subscriber,
			// which records the actual delivery outcome.
			b.logger.Debug("unread push published",
				zap.String("user_id", userID), zap.Int("unread", unread))
			return
		}
		b.logger.Warn("push publish failed, delivering locally",
			zap.String("user_id", userID), zap.Error(err))
	}

	result := b.hub.Deliver(userID, unread)
	if b.recorder != nil {
		b.recorder.ObservePush(result)
	}
	b.logger.Debug("unread push",
		zap.String("user_id", userID),
		zap.Int("unread", unread),
		zap.String("result", string(result)))
}
