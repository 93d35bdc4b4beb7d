package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"socialchat-backend/internal/database"
)

const (
	onlineSetKey = "presence:online"
	presenceTTL  = 5 * time.Minute
)

// PresenceRepository handles user online/offline status in Redis
type PresenceRepository struct {
	client *database.RedisClient
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client}
}

func presenceKey(userID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", userID)
}

// SetUserOnline marks user as online. The key expires unless refreshed.
func (r *PresenceRepository) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return database.ErrRedisDegraded
	}

	pipe := r.client.Client.TxPipeline()
	pipe.Set(ctx, presenceKey(userID), "online", presenceTTL)
	pipe.SAdd(ctx, onlineSetKey, userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	return nil
}

// SetUserOffline marks user as offline
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return database.ErrRedisDegraded
	}

	pipe := r.client.Client.TxPipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.SRem(ctx, onlineSetKey, userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user offline: %w", err)
	}

	return nil
}

// RefreshPresence extends the online TTL, called on keepalive pongs
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userID uuid.UUID) error {
	if r.client.IsDegraded() {
		return database.ErrRedisDegraded
	}

	if err := r.client.Client.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}

	return nil
}

// IsUserOnline checks if user is currently online
func (r *PresenceRepository) IsUserOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	if r.client.IsDegraded() {
		return false, database.ErrRedisDegraded
	}

	exists, err := r.client.Client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}

	return exists > 0, nil
}
