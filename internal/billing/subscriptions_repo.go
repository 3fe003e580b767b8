package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
)

// SubscriptionsRepository mirrors remote provider subscriptions locally.
type SubscriptionsRepository interface {
	WithTx(tx *gorm.DB) SubscriptionsRepository
	Sync(ctx context.Context, sub *models.BillingSubscription) error
	FindByProviderSubscriptionID(ctx context.Context, id string) (*models.BillingSubscription, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]models.BillingSubscription, error)
}

type subscriptionsRepository struct {
	db *gorm.DB
}

// NewSubscriptionsRepository builds the repo bound to the provided DB.
func NewSubscriptionsRepository(db *gorm.DB) SubscriptionsRepository {
	return &subscriptionsRepository{db: db}
}

func (r *subscriptionsRepository) WithTx(tx *gorm.DB) SubscriptionsRepository {
	if tx == nil {
		return r
	}
	return &subscriptionsRepository{db: tx}
}

// Sync upserts the remote subscription snapshot wholesale.
func (r *subscriptionsRepository) Sync(ctx context.Context, sub *models.BillingSubscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "plan", "status", "current_period_end",
			"cancel_at_period_end", "metadata", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *subscriptionsRepository) FindByProviderSubscriptionID(ctx context.Context, id string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionsRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
