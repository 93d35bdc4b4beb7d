package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"socialchat-backend/internal/domain"
)

// MessageRepository is the CockroachDB conversation store
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// StoreMessage persists ciphertext from sender to receiver
func (r *MessageRepository) StoreMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	msg := &domain.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if err := r.db.QueryRow(ctx, query, id, senderID, receiverID, content).Scan(&msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

// GetChatHistory returns every live message between a and b, oldest first
func (r *MessageRepository) GetChatHistory(ctx context.Context, a, b uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE deleted_at IS NULL
		  AND ((sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1))
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg := &domain.Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// SoftDelete hides a message from history. Only its sender may delete it.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error {
	query := `
		UPDATE messages
		SET deleted_at = now()
		WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, messageID, senderID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	return nil
}
