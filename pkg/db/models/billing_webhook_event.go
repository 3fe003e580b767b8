package models

import (
	"encoding/json"
	"time"
)

// BillingWebhookEvent dedupes provider webhook deliveries by event id. A row
// with Processed=true is terminal; an unprocessed row may be claimed again so
// provider retries can recover from handler failures.
type BillingWebhookEvent struct {
	EventID   string          `gorm:"column:event_id;primaryKey"`
	EventType string          `gorm:"column:event_type;not null"`
	Processed bool            `gorm:"column:processed;not null;default:false"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
