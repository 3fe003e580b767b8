package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// UsageEvent is the append-only audit trail, one row per successful consume.
// Never mutated or deleted.
type UsageEvent struct {
	ID          uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubjectType enums.SubjectType `gorm:"column:subject_type;not null;index:idx_usage_events_subject"`
	SubjectKey  string            `gorm:"column:subject_key;not null;index:idx_usage_events_subject"`
	PeriodKey   string            `gorm:"column:period_key;not null"`
	Plan        enums.PlanCode    `gorm:"column:plan;not null"`
	EventType   string            `gorm:"column:event_type;not null"`
	RequestID   string            `gorm:"column:request_id"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
