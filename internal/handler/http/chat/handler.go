package chat

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"socialchat-backend/internal/domain"
	"socialchat-backend/pkg/response"
)

// KeyService manages chat keypairs
type KeyService interface {
	GenerateKeys(ctx context.Context, userID uuid.UUID, password string) (*domain.KeyPairResponse, error)
	GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyResponse, error)
}

// HistoryService reads and deletes chat messages
type HistoryService interface {
	GetHistory(ctx context.Context, selfID, otherID uuid.UUID, password string) ([]*domain.HistoryMessage, error)
	DeleteMessage(ctx context.Context, senderID, messageID uuid.UUID) error
}

// Handler handles chat HTTP requests
type Handler struct {
	keys    KeyService
	history HistoryService
}

// NewHandler creates a new chat handler
func NewHandler(keys KeyService, history HistoryService) *Handler {
	return &Handler{
		keys:    keys,
		history: history,
	}
}

// GenerateKeysRequest represents key generation/recovery request
type GenerateKeysRequest struct {
	Password string `json:"password" binding:"required"`
}

// HistoryRequest represents chat history request. Password is optional.
type HistoryRequest struct {
	Password string `json:"password"`
}

// GenerateKeys creates the caller's keypair, or recovers it when one exists
// POST /v1/chat/keys
func (h *Handler) GenerateKeys(c *gin.Context) {
	var req GenerateKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Password is required")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	keys, err := h.keys.GenerateKeys(c.Request.Context(), userID, req.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, keys)
}

// GetPublicKey returns a user's public key
// GET /v1/chat/keys/:user_id
func (h *Handler) GetPublicKey(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	key, err := h.keys.GetPublicKey(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, key)
}

// GetHistory returns the caller's history with another user
// POST /v1/chat/history/:user_id
func (h *Handler) GetHistory(c *gin.Context) {
	otherID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	// An empty body means no password
	var req HistoryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "Invalid request body")
			return
		}
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	messages, err := h.history.GetHistory(c.Request.Context(), userID, otherID, req.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, messages)
}

// DeleteMessage soft-deletes a message sent by the caller
// DELETE /v1/chat/messages/:message_id
func (h *Handler) DeleteMessage(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		response.ValidationError(c, "Invalid message ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.history.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// currentUserID reads the user set by the auth middleware, writing the error response when absent
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
