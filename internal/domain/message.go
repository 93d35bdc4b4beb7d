package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a direct chat message between two users
// Maps to CockroachDB messages table or Cassandra messages_by_pair
// Content is ciphertext under the receiver's public key
type Message struct {
	ID         uuid.UUID  `json:"id" db:"id" cql:"message_id"`
	SenderID   uuid.UUID  `json:"senderId" db:"sender_id" cql:"sender_id"`
	ReceiverID uuid.UUID  `json:"receiverId" db:"receiver_id" cql:"receiver_id"`
	Content    string     `json:"content" db:"content" cql:"content"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at" cql:"created_at"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty" db:"deleted_at" cql:"deleted_at"`
}

// HistoryMessage is a Message in a history response.
// Plaintext is set only when the caller supplied a password and is the receiver.
type HistoryMessage struct {
	*Message
	Plaintext *string `json:"plaintext,omitempty"`
}

// ConversationKey returns the order-independent key of the pair {a, b}
func ConversationKey(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if strings.Compare(as, bs) > 0 {
		as, bs = bs, as
	}
	return as + ":" + bs
}
