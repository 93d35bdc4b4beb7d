package ws

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

const userChannelPrefix = "chat:user:"

// UserChannel is the Redis channel carrying frames for one user
func UserChannel(userID uuid.UUID) string {
	return userChannelPrefix + userID.String()
}

func userFromChannel(channel string) (uuid.UUID, bool) {
	if !strings.HasPrefix(channel, userChannelPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(channel, userChannelPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RedisRelay fans events out across instances. Broadcast publishes one frame
// per user; every instance runs one pattern subscription and delivers the
// frames to its local registry, so each connection still gets exactly one copy.
type RedisRelay struct {
	client   *redis.Client
	registry *Registry
}

// NewRedisRelay creates a relay delivering into registry
func NewRedisRelay(client *redis.Client, registry *Registry) *RedisRelay {
	return &RedisRelay{client: client, registry: registry}
}

// Broadcast publishes the event to each user's channel
func (r *RedisRelay) Broadcast(ctx context.Context, userIDs []uuid.UUID, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	for _, userID := range dedupe(userIDs) {
		pipe.Publish(ctx, UserChannel(userID), frame)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.ChatRedisPublishTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to publish chat event: %w", err)
	}

	metrics.ChatRedisPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// Run subscribes to every user channel and delivers locally until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, userChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting it active
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to chat channels: %w", err)
	}
	metrics.ChatRedisSubscriptionActive.Set(1)
	defer metrics.ChatRedisSubscriptionActive.Set(0)

	logger.Log.Info("Chat relay subscribed", zap.String("pattern", userChannelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, ok := userFromChannel(msg.Channel)
			if !ok {
				logger.Log.Warn("Ignoring frame on unexpected channel", zap.String("channel", msg.Channel))
				continue
			}
			r.registry.Deliver([]uuid.UUID{userID}, []byte(msg.Payload))
		}
	}
}
