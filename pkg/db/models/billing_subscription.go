package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// BillingSubscription mirrors the remote (Stripe) subscription object for a
// user. Synced wholesale on every webhook touch.
type BillingSubscription struct {
	ProviderSubscriptionID string                          `gorm:"column:provider_subscription_id;primaryKey"`
	UserID                 uuid.UUID                       `gorm:"column:user_id;type:uuid;not null;index"`
	Plan                   enums.PlanCode                  `gorm:"column:plan;not null"`
	Status                 enums.BillingSubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodEnd       *time.Time                      `gorm:"column:current_period_end"`
	CancelAtPeriodEnd      bool                            `gorm:"column:cancel_at_period_end;not null;default:false"`
	Metadata               json.RawMessage                 `gorm:"column:metadata;type:jsonb"`
	CreatedAt              time.Time                       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                       `gorm:"column:updated_at;autoUpdateTime"`
}
