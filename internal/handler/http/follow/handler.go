package follow

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"socialchat-backend/internal/domain"
	"socialchat-backend/pkg/response"
)

// FollowService mutates the follow graph
type FollowService interface {
	Follow(ctx context.Context, followerID, followedID uuid.UUID) (*domain.Follow, error)
	Unfollow(ctx context.Context, followerID, followedID uuid.UUID) error
}

// Handler handles follower HTTP requests
type Handler struct {
	followService FollowService
}

// NewHandler creates a new follower handler
func NewHandler(followService FollowService) *Handler {
	return &Handler{followService: followService}
}

// Follow handles POST /v1/follower/follow/:user_id
func (h *Handler) Follow(c *gin.Context) {
	followerID, followedID, ok := pair(c)
	if !ok {
		return
	}

	follow, err := h.followService.Follow(c.Request.Context(), followerID, followedID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, follow)
}

// Unfollow handles POST /v1/follower/unfollow/:user_id
func (h *Handler) Unfollow(c *gin.Context) {
	followerID, followedID, ok := pair(c)
	if !ok {
		return
	}

	if err := h.followService.Unfollow(c.Request.Context(), followerID, followedID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Unfollowed successfully",
	})
}

func pair(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	followedID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return uuid.Nil, uuid.Nil, false
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}
	followerID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, uuid.Nil, false
	}

	return followerID, followedID, true
}
