package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records every processed payment-provider event. The unique
// provider event id is what makes at-least-once webhook delivery safe: the
// insert happens in the same transaction as the event's effect, so a replay
// hits the unique constraint instead of re-applying anything.
type WebhookEvent struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProviderEventID string          `gorm:"column:provider_event_id;type:text;not null;uniqueIndex:ux_webhook_events_provider_event_id"`
	EventType       string          `gorm:"column:event_type;type:text;not null"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb"`
	ProcessedAt     time.Time       `gorm:"column:processed_at;autoCreateTime"`
}
