package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follow is a directed edge of the follow graph
// Maps to CockroachDB follows table, soft-deleted on unfollow
type Follow struct {
	FollowerID uuid.UUID  `json:"follower_id" db:"follower_id"`
	FollowedID uuid.UUID  `json:"followed_id" db:"followed_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
