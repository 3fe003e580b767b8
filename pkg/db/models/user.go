package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// User represents the canonical identity entity. Plan is denormalized from
// the active subscription so token minting and quota checks avoid a join;
// subscriptions.SetPlan keeps the two in step.
type User struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string           `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string           `gorm:"column:password_hash;not null"`
	Name         string           `gorm:"column:name;not null"`
	Role         enums.Role       `gorm:"column:role;not null;default:'subscriber'"`
	Status       enums.UserStatus `gorm:"column:status;not null;default:'active'"`
	Plan         enums.PlanCode   `gorm:"column:plan;not null;default:'free'"`
	GoogleSub    *string          `gorm:"column:google_sub;uniqueIndex"`
	LastLoginAt  *time.Time       `gorm:"column:last_login_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
