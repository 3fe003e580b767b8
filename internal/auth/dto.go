package auth

import (
	"time"

	"github.com/promptlens/promptlens-backend/internal/users"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// RegisterRequest captures the signup payload.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

// LoginRequest captures the credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GoogleSignInRequest carries the raw Google ID token from the client.
type GoogleSignInRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// AuthResponse is returned by every successful sign-in path.
type AuthResponse struct {
	AccessToken string         `json:"access_token"`
	User        *users.UserDTO `json:"user"`
	// IsNewUser is true when Google sign-in provisioned the account.
	IsNewUser bool `json:"is_new_user,omitempty"`
}

// SubscriptionDTO is the transport shape of the active subscription.
type SubscriptionDTO struct {
	Plan         enums.PlanCode           `json:"plan"`
	Status       enums.SubscriptionStatus `json:"status"`
	MonthlyQuota *int                     `json:"monthly_quota"`
	PriceCents   int64                    `json:"price_cents"`
	StartedAt    time.Time                `json:"started_at"`
	RenewsAt     time.Time                `json:"renews_at"`
}

// UsageDTO reports the current period's consumption. Limit and Remaining are
// nil on unlimited plans.
type UsageDTO struct {
	PeriodKey string `json:"period"`
	Used      int    `json:"used"`
	Limit     *int   `json:"limit"`
	Remaining *int   `json:"remaining"`
}

// SnapshotResponse is the /me payload: account, entitlement, and usage.
type SnapshotResponse struct {
	User         *users.UserDTO   `json:"user"`
	Subscription *SubscriptionDTO `json:"subscription"`
	Usage        *UsageDTO        `json:"usage"`
}
