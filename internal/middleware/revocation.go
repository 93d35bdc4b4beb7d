package middleware

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"socialchat-backend/pkg/jwt"
)

// RedisRevocationChecker looks up the jti blacklist the auth service writes on logout
type RedisRevocationChecker struct {
	client *redis.Client
}

func NewRedisRevocationChecker(client *redis.Client) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// RevocationKey is the blacklist entry for a token id
func RevocationKey(tokenID string) string {
	return "blacklist:" + tokenID
}

// IsRevoked reports whether the verified token has been blacklisted.
// Tokens without a jti cannot be revoked.
func (r *RedisRevocationChecker) IsRevoked(ctx context.Context, claims *jwt.Claims) (bool, error) {
	if claims.ID == "" {
		return false, nil
	}

	n, err := r.client.Exists(ctx, RevocationKey(claims.ID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation of %s: %w", claims.ID, err)
	}
	return n > 0, nil
}
