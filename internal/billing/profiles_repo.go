package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// ProfilesRepository links users to their provider customer records.
type ProfilesRepository interface {
	WithTx(tx *gorm.DB) ProfilesRepository
	Upsert(ctx context.Context, profile *models.BillingProfile) error
	FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider) (*models.BillingProfile, error)
	FindByProviderCustomerID(ctx context.Context, provider enums.PaymentProvider, customerID string) (*models.BillingProfile, error)
}

type profilesRepository struct {
	db *gorm.DB
}

// NewProfilesRepository builds the repo bound to the provided DB.
func NewProfilesRepository(db *gorm.DB) ProfilesRepository {
	return &profilesRepository{db: db}
}

func (r *profilesRepository) WithTx(tx *gorm.DB) ProfilesRepository {
	if tx == nil {
		return r
	}
	return &profilesRepository{db: tx}
}

func (r *profilesRepository) Upsert(ctx context.Context, profile *models.BillingProfile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id", "updated_at",
		}),
	}).Create(profile).Error
}

func (r *profilesRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider enums.PaymentProvider) (*models.BillingProfile, error) {
	var profile models.BillingProfile
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profilesRepository) FindByProviderCustomerID(ctx context.Context, provider enums.PaymentProvider, customerID string) (*models.BillingProfile, error) {
	var profile models.BillingProfile
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_customer_id = ?", provider, customerID).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
