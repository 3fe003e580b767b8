package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// BillingOrder is a provider-side purchase intent keyed by the provider's
// order id. Status transitions created->paid or created->failed and is
// terminal afterwards; a retried checkout may overwrite a created row back to
// created with fresh amounts.
type BillingOrder struct {
	ProviderOrderID string                `gorm:"column:provider_order_id;primaryKey"`
	Provider        enums.PaymentProvider `gorm:"column:provider;not null"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Plan            enums.PlanCode        `gorm:"column:plan;not null"`
	BillingCycle    enums.BillingCycle    `gorm:"column:billing_cycle;not null"`
	AmountCents     int64                 `gorm:"column:amount_cents;not null"`
	Currency        enums.Currency        `gorm:"column:currency;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;not null;default:'created'"`
	FailureReason   *string               `gorm:"column:failure_reason"`
	PaymentPayload  json.RawMessage       `gorm:"column:payment_payload;type:jsonb"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
