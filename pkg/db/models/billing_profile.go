package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// BillingProfile links a user to their customer record at a payment provider.
type BillingProfile struct {
	ID                 uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID             `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uq_billing_profiles_user_provider"`
	Provider           enums.PaymentProvider `gorm:"column:provider;not null;uniqueIndex:uq_billing_profiles_user_provider"`
	ProviderCustomerID string                `gorm:"column:provider_customer_id;not null"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
