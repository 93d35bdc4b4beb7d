package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"socialchat-backend/internal/domain"
	"socialchat-backend/pkg/e2ee"
	apperrors "socialchat-backend/pkg/errors"
	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

// Error messages shown to chat clients
const (
	MsgNotMutualFollow   = "Users must follow each other to chat"
	MsgNoReceiverKey     = "Receiver has no public key"
	MsgFailedStartChat   = "Failed to start chat"
	MsgFailedSendMessage = "Failed to send message"
)

// FollowChecker is the mutual-follow authorization gate
type FollowChecker interface {
	CanUsersChat(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// MessageStore persists encrypted messages per user pair
type MessageStore interface {
	StoreMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error)
	GetChatHistory(ctx context.Context, a, b uuid.UUID) ([]*domain.Message, error)
	SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error
}

// PublicKeyStore looks up a receiver's public key, "" when absent
type PublicKeyStore interface {
	GetUserPublicKey(ctx context.Context, userID uuid.UUID) (string, error)
}

// KeyUnlocker recovers a user's private key from its wrapped form
type KeyUnlocker interface {
	UnlockPrivateKey(ctx context.Context, userID uuid.UUID, password string) (string, error)
}

// Broadcaster delivers one event to every live connection of each user.
// Implementations deliver at most once per connection even if a user repeats.
type Broadcaster interface {
	Broadcast(ctx context.Context, userIDs []uuid.UUID, event string, data any) error
}

// MessageAuditor records message deletions
type MessageAuditor interface {
	LogMessageDelete(ctx context.Context, userID, messageID uuid.UUID) error
}

// Service handles authorization-gated chat operations
type Service struct {
	follows     FollowChecker
	messages    MessageStore
	publicKeys  PublicKeyStore
	unlocker    KeyUnlocker
	broadcaster Broadcaster
	auditor     MessageAuditor
}

// NewService creates a new chat service
func NewService(
	follows FollowChecker,
	messages MessageStore,
	publicKeys PublicKeyStore,
	unlocker KeyUnlocker,
	broadcaster Broadcaster,
	auditor MessageAuditor,
) *Service {
	return &Service{
		follows:     follows,
		messages:    messages,
		publicKeys:  publicKeys,
		unlocker:    unlocker,
		broadcaster: broadcaster,
		auditor:     auditor,
	}
}

// authorize runs the gate. It is called on every operation, never cached.
func (s *Service) authorize(ctx context.Context, selfID, otherID uuid.UUID) error {
	ok, err := s.follows.CanUsersChat(ctx, selfID, otherID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		metrics.ChatMessageSendUnauthorizedTotal.Inc()
		return apperrors.ForbiddenError(MsgNotMutualFollow)
	}
	return nil
}

// StartChat returns the ordered history of the pair if both users follow each other
func (s *Service) StartChat(ctx context.Context, selfID, receiverID uuid.UUID) ([]*domain.Message, error) {
	if err := s.authorize(ctx, selfID, receiverID); err != nil {
		return nil, err
	}

	history, err := s.messages.GetChatHistory(ctx, selfID, receiverID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return history, nil
}

// SendMessage encrypts content for the receiver, stores it, and fans the
// stored message out to both users. A fan-out failure does not undo the store.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error) {
	if content == "" {
		return nil, apperrors.ValidationError("Message content is required")
	}
	if err := s.authorize(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	publicKey, err := s.publicKeys.GetUserPublicKey(ctx, receiverID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if publicKey == "" {
		return nil, apperrors.NewWithStatus(apperrors.ErrCodeNotFound, MsgNoReceiverKey, http.StatusNotFound)
	}

	start := time.Now()
	ciphertext, err := e2ee.EncryptMessage(content, publicKey)
	if err != nil {
		if errors.Is(err, e2ee.ErrPayloadTooLarge) {
			return nil, apperrors.PayloadTooLargeError(err)
		}
		return nil, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, MsgFailedSendMessage, http.StatusInternalServerError, err)
	}
	metrics.ChatMessageDeliveryDuration.WithLabelValues("encrypt").Observe(time.Since(start).Seconds())

	start = time.Now()
	msg, err := s.messages.StoreMessage(ctx, senderID, receiverID, ciphertext)
	if err != nil {
		metrics.ChatMessagePersistedTotal.WithLabelValues("failure").Inc()
		return nil, apperrors.DatabaseError(err)
	}
	metrics.ChatMessagePersistedTotal.WithLabelValues("success").Inc()
	metrics.ChatMessageDeliveryDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())

	start = time.Now()
	if err := s.broadcaster.Broadcast(ctx, []uuid.UUID{senderID, receiverID}, domain.EventNewMessage, msg); err != nil {
		logger.FromContext(ctx).Error("Failed to fan out message",
			zap.Stringer("message_id", msg.ID),
			zap.Error(err))
	}
	metrics.ChatMessageDeliveryDuration.WithLabelValues("broadcast").Observe(time.Since(start).Seconds())

	return msg, nil
}

// GetHistory returns the pair's history. With a password, messages addressed
// to the caller carry their decrypted plaintext; any decryption failure fails the call.
func (s *Service) GetHistory(ctx context.Context, selfID, otherID uuid.UUID, password string) ([]*domain.HistoryMessage, error) {
	history, err := s.StartChat(ctx, selfID, otherID)
	if err != nil {
		return nil, err
	}

	var privateKey string
	if password != "" {
		privateKey, err = s.unlocker.UnlockPrivateKey(ctx, selfID, password)
		if err != nil {
			return nil, err
		}
	}

	result := make([]*domain.HistoryMessage, 0, len(history))
	for _, msg := range history {
		item := &domain.HistoryMessage{Message: msg}
		if privateKey != "" && msg.ReceiverID == selfID {
			plaintext, err := e2ee.DecryptMessage(msg.Content, privateKey)
			if err != nil {
				return nil, apperrors.DecryptionFailedError(err).WithDetails(map[string]string{"message_id": msg.ID.String()})
			}
			item.Plaintext = &plaintext
		}
		result = append(result, item)
	}

	return result, nil
}

// DeleteMessage soft-deletes a message sent by senderID
func (s *Service) DeleteMessage(ctx context.Context, senderID, messageID uuid.UUID) error {
	if err := s.messages.SoftDelete(ctx, messageID, senderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFoundError("Message")
		}
		return apperrors.DatabaseError(err)
	}

	if err := s.auditor.LogMessageDelete(ctx, senderID, messageID); err != nil {
		logger.FromContext(ctx).Warn("Failed to write audit event", zap.Error(err))
	}
	return nil
}
