package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"socialchat-backend/internal/domain"
)

// FollowRepository handles the follow graph in CockroachDB
type FollowRepository struct {
	db DBTX
}

// NewFollowRepository creates a new FollowRepository
func NewFollowRepository(db DBTX) *FollowRepository {
	return &FollowRepository{db: db}
}

// CanUsersChat is true iff a and b follow each other and neither edge is deleted
func (r *FollowRepository) CanUsersChat(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}

	query := `
		SELECT COUNT(*)
		FROM follows
		WHERE deleted_at IS NULL
		  AND ((follower_id = $1 AND followed_id = $2)
		    OR (follower_id = $2 AND followed_id = $1))
	`

	var count int
	if err := r.db.QueryRow(ctx, query, a, b).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check mutual follow: %w", err)
	}

	return count == 2, nil
}

// Follow creates the edge follower -> followed, reviving a soft-deleted one
func (r *FollowRepository) Follow(ctx context.Context, followerID, followedID uuid.UUID) (*domain.Follow, error) {
	if followerID == followedID {
		return nil, domain.ErrSelfEdge
	}

	query := `
		INSERT INTO follows (follower_id, followed_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, followed_id) DO UPDATE
		SET deleted_at = NULL
		RETURNING follower_id, followed_id, created_at, deleted_at
	`

	follow := &domain.Follow{}
	err := r.db.QueryRow(ctx, query, followerID, followedID).Scan(
		&follow.FollowerID,
		&follow.FollowedID,
		&follow.CreatedAt,
		&follow.DeletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to follow user: %w", err)
	}

	return follow, nil
}

// Unfollow soft-deletes the edge follower -> followed
func (r *FollowRepository) Unfollow(ctx context.Context, followerID, followedID uuid.UUID) error {
	query := `
		UPDATE follows
		SET deleted_at = now()
		WHERE follower_id = $1 AND followed_id = $2 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, followerID, followedID)
	if err != nil {
		return fmt.Errorf("failed to unfollow user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("follow %s -> %s: %w", followerID, followedID, domain.ErrNotFound)
	}

	return nil
}
