package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	EventKeyGenerate   AuditEventType = "key_generate"
	EventKeyRecover    AuditEventType = "key_recover"
	EventKeyLocked     AuditEventType = "key_locked"
	EventMessageDelete AuditEventType = "message_delete"
)

// Retention is how long a day's audit list is kept
const Retention = 90 * 24 * time.Hour

// AuditEvent represents an audit log entry
type AuditEvent struct {
	EventID   uuid.UUID      `json:"event_id"`
	UserID    uuid.UUID      `json:"user_id"`
	EventType AuditEventType `json:"event_type"`
	Resource  string         `json:"resource,omitempty"`
	Success   bool           `json:"success"`
	ErrorCode string         `json:"error_code,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditLogger appends events to a per-day Redis list
type AuditLogger struct {
	redisClient *redis.Client
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(redisClient *redis.Client) *AuditLogger {
	return &AuditLogger{redisClient: redisClient}
}

// Key returns the Redis list holding events of the given day
func Key(t time.Time) string {
	return fmt.Sprintf("audit:events:%s", t.UTC().Format("2006-01-02"))
}

// Log stores an audit event
func (al *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	event.Timestamp = time.Now().UTC()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := Key(event.Timestamp)
	pipe := al.redisClient.Pipeline()
	pipe.LPush(ctx, key, eventJSON)
	pipe.Expire(ctx, key, Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	return nil
}

// LogKeyEvent records a key generation or recovery outcome
func (al *AuditLogger) LogKeyEvent(ctx context.Context, userID uuid.UUID, eventType AuditEventType, success bool, errorCode string) error {
	return al.Log(ctx, &AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Resource:  "user_keys",
		Success:   success,
		ErrorCode: errorCode,
	})
}

// LogMessageDelete records a sender deleting one of their messages
func (al *AuditLogger) LogMessageDelete(ctx context.Context, userID, messageID uuid.UUID) error {
	return al.Log(ctx, &AuditEvent{
		UserID:    userID,
		EventType: EventMessageDelete,
		Resource:  "message:" + messageID.String(),
		Success:   true,
	})
}
