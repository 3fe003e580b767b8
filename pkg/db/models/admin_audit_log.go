package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AdminAuditLog is an append-only record of privileged actions. Rows are
// never updated or deleted.
type AdminAuditLog struct {
	ID           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ActorID      uuid.UUID       `gorm:"column:actor_id;type:uuid;not null;index"`
	Action       string          `gorm:"column:action;not null"`
	TargetUserID *uuid.UUID      `gorm:"column:target_user_id;type:uuid;index"`
	Metadata     json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
