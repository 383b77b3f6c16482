package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type pushPayload struct {
	UserID string `json:"user_id"`
	Unread int    `json:"unread"`
}

// RedisFanout bridges the per-user groups across API instances using Redis
// pub/sub. Each user maps to the channel prefix + user id; every instance
// subscribes to the whole prefix and forwards matching events to its local
// hub.
type RedisFanout struct {
	client   *redis.Client
	hub      *Hub
	prefix   string
	recorder Recorder
	logger   *zap.Logger
}

// NewRedisFanout constructs the bridge. recorder may be nil.
func NewRedisFanout(client *redis.Client, hub *Hub, prefix string, recorder Recorder, logger *zap.Logger) *RedisFanout {
	if prefix == "" {
		prefix = "user_"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFanout{client: client, hub: hub, prefix: prefix, recorder: recorder, logger: logger}
}

// Publish sends the unread-count event to the user's channel.
func (f *RedisFanout) Publish(ctx context.Context, userID string, unread int) error {
	payload, err := json.Marshal(pushPayload{UserID: userID, Unread: unread})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.prefix+userID, payload).Err()
}

// Run subscribes to every per-user channel and forwards events to the local
// hub until the context is cancelled. Intended to run in its own goroutine.
func (f *RedisFanout) Run(ctx context.Context) {
	sub := f.client.PSubscribe(ctx, f.prefix+"*")
	defer sub.Close() //nolint:errcheck

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload pushPayload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				f.logger.Warn("malformed push payload", zap.Error(err))
				continue
			}
			userID := payload.UserID
			if userID == "" {
				userID = strings.TrimPrefix(msg.Channel, f.prefix)
			}
			result := f.hub.Deliver(userID, payload.Unread)
			if f.recorder != nil {
				f.recorder.ObservePush(result)
			}
		}
	}
}
