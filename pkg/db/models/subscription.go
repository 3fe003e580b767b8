package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// Subscription is one row of a user's append-only plan history. At most one
// row per user carries status=active; changing plan flips the old row to
// canceled and inserts a fresh active row.
type Subscription struct {
	ID           uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Plan         enums.PlanCode           `gorm:"column:plan;not null"`
	Status       enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	MonthlyQuota *int                     `gorm:"column:monthly_quota"`
	PriceCents   int64                    `gorm:"column:price_cents;not null;default:0"`
	StartedAt    time.Time                `gorm:"column:started_at;not null"`
	RenewsAt     time.Time                `gorm:"column:renews_at;not null"`
	CanceledAt   *time.Time               `gorm:"column:canceled_at"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
