package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockoutManager throttles wrong-password attempts against a user's wrapped private key
type LockoutManager struct {
	redisClient  *redis.Client
	maxAttempts  int
	lockDuration time.Duration
}

// LockoutConfig holds lockout configuration
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// NewLockoutManager creates a lockout manager, 5 attempts per 15 minutes unless overridden
func NewLockoutManager(redisClient *redis.Client, config LockoutConfig) *LockoutManager {
	lm := &LockoutManager{
		redisClient:  redisClient,
		maxAttempts:  5,
		lockDuration: 15 * time.Minute,
	}
	if config.MaxAttempts > 0 {
		lm.maxAttempts = config.MaxAttempts
	}
	if config.LockDuration > 0 {
		lm.lockDuration = config.LockDuration
	}
	return lm
}

func failedKey(userID uuid.UUID) string {
	return fmt.Sprintf("lockout:key:%s", userID)
}

// RecordFailedAttempt counts a wrong password. The window starts at the first failure.
// It reports whether the user is now locked.
func (lm *LockoutManager) RecordFailedAttempt(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := failedKey(userID)

	pipe := lm.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, lm.lockDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	return incr.Val() >= int64(lm.maxAttempts), nil
}

// IsLocked checks whether the user has exhausted their attempts
func (lm *LockoutManager) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	count, err := lm.redisClient.Get(ctx, failedKey(userID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check lockout status: %w", err)
	}

	return count >= lm.maxAttempts, nil
}

// ClearFailedAttempts resets the counter after a successful unwrap
func (lm *LockoutManager) ClearFailedAttempts(ctx context.Context, userID uuid.UUID) error {
	if err := lm.redisClient.Del(ctx, failedKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear failed attempts: %w", err)
	}
	return nil
}
