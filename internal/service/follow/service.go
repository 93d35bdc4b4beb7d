package follow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"socialchat-backend/internal/domain"
	apperrors "socialchat-backend/pkg/errors"
)

// Repository mutates the follow graph
type Repository interface {
	Follow(ctx context.Context, followerID, followedID uuid.UUID) (*domain.Follow, error)
	Unfollow(ctx context.Context, followerID, followedID uuid.UUID) error
}

// Service handles follow graph changes that feed the chat gate
type Service struct {
	repo Repository
}

// NewService creates a new follow service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Follow makes followerID follow followedID. Following twice is a no-op.
func (s *Service) Follow(ctx context.Context, followerID, followedID uuid.UUID) (*domain.Follow, error) {
	if followerID == followedID {
		return nil, apperrors.ValidationError(domain.ErrSelfEdge.Error())
	}

	follow, err := s.repo.Follow(ctx, followerID, followedID)
	if err != nil {
		if errors.Is(err, domain.ErrSelfEdge) {
			return nil, apperrors.ValidationError(err.Error())
		}
		return nil, apperrors.DatabaseError(err)
	}
	return follow, nil
}

// Unfollow removes the edge followerID -> followedID
func (s *Service) Unfollow(ctx context.Context, followerID, followedID uuid.UUID) error {
	if err := s.repo.Unfollow(ctx, followerID, followedID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFoundError("Follow")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}
