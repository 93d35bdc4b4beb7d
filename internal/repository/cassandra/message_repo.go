package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"socialchat-backend/internal/database"
	"socialchat-backend/internal/domain"
)

// MessageRepository is the Cassandra conversation store.
// messages_by_pair is partitioned by the normalized user pair and clustered by
// (created_at, message_id), so one partition read returns a whole conversation in order.
// messages_by_id locates a message's clustering key for deletes.
type MessageRepository struct {
	db *database.CassandraDB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *database.CassandraDB) *MessageRepository {
	return &MessageRepository{db: db}
}

// StoreMessage inserts the message into both tables in one logged batch
func (r *MessageRepository) StoreMessage(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	msg := &domain.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		// Cassandra timestamps have millisecond precision
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	pair := domain.ConversationKey(senderID, receiverID)

	batch := r.db.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO messages_by_pair (
			conversation_key, created_at, message_id, sender_id, receiver_id, content, deleted
		) VALUES (?, ?, ?, ?, ?, ?, false)`,
		pair, msg.CreatedAt, gocql.UUID(msg.ID), gocql.UUID(senderID), gocql.UUID(receiverID), content,
	)
	batch.Query(`
		INSERT INTO messages_by_id (message_id, conversation_key, created_at, sender_id)
		VALUES (?, ?, ?, ?)`,
		gocql.UUID(msg.ID), pair, msg.CreatedAt, gocql.UUID(senderID),
	)

	if err := r.db.Session.ExecuteBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

// GetChatHistory reads the pair's partition oldest first, skipping deleted rows
func (r *MessageRepository) GetChatHistory(ctx context.Context, a, b uuid.UUID) ([]*domain.Message, error) {
	iter := r.db.Query(ctx, `
		SELECT message_id, sender_id, receiver_id, content, created_at, deleted
		FROM messages_by_pair
		WHERE conversation_key = ?`,
		domain.ConversationKey(a, b),
	).Iter()

	messages := make([]*domain.Message, 0)
	var (
		id, sender, receiver gocql.UUID
		content              string
		createdAt            time.Time
		deleted              bool
	)
	for iter.Scan(&id, &sender, &receiver, &content, &createdAt, &deleted) {
		if deleted {
			continue
		}
		messages = append(messages, &domain.Message{
			ID:         uuid.UUID(id),
			SenderID:   uuid.UUID(sender),
			ReceiverID: uuid.UUID(receiver),
			Content:    content,
			CreatedAt:  createdAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, nil
}

// SoftDelete marks a message deleted. Only its sender may delete it.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) error {
	var (
		pair      string
		createdAt time.Time
		sender    gocql.UUID
	)
	err := r.db.Query(ctx, `
		SELECT conversation_key, created_at, sender_id
		FROM messages_by_id
		WHERE message_id = ?`,
		gocql.UUID(messageID),
	).Scan(&pair, &createdAt, &sender)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to get message: %w", err)
	}
	if uuid.UUID(sender) != senderID {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	err = r.db.Query(ctx, `
		UPDATE messages_by_pair SET deleted = true, deleted_at = ?
		WHERE conversation_key = ? AND created_at = ? AND message_id = ?`,
		time.Now().UTC(), pair, createdAt, gocql.UUID(messageID),
	).Exec()
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}
