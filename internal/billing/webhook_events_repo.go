package billing

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
)

// WebhookEventsRepository is the durable idempotency guard for provider
// webhook deliveries.
type WebhookEventsRepository interface {
	WithTx(tx *gorm.DB) WebhookEventsRepository
	// Claim registers the delivery. It reports false when the event id was
	// already processed; an unprocessed duplicate refreshes the payload and
	// is claimed again so provider retries can recover from failures.
	Claim(ctx context.Context, eventID, eventType string, payload []byte) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string) error
	Find(ctx context.Context, eventID string) (*models.BillingWebhookEvent, error)
}

type webhookEventsRepository struct {
	db *gorm.DB
}

// NewWebhookEventsRepository builds the repo bound to the provided DB.
func NewWebhookEventsRepository(db *gorm.DB) WebhookEventsRepository {
	return &webhookEventsRepository{db: db}
}

func (r *webhookEventsRepository) WithTx(tx *gorm.DB) WebhookEventsRepository {
	if tx == nil {
		return r
	}
	return &webhookEventsRepository{db: tx}
}

func (r *webhookEventsRepository) Claim(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	row := models.BillingWebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Processed: false,
		Payload:   payload,
	}
	insert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row)
	if insert.Error != nil {
		return false, insert.Error
	}
	if insert.RowsAffected == 1 {
		return true, nil
	}

	// Duplicate delivery: only reclaim rows whose processing never finished.
	update := r.db.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ? AND processed = ?", eventID, false).
		Updates(map[string]any{
			"event_type": eventType,
			"payload":    payload,
		})
	if update.Error != nil {
		return false, update.Error
	}
	return update.RowsAffected == 1, nil
}

func (r *webhookEventsRepository) MarkProcessed(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ?", eventID).
		UpdateColumn("processed", true).Error
}

// MarkFailed leaves the row unprocessed so the provider's retry reclaims it;
// the touch still bumps updated_at for operability.
func (r *webhookEventsRepository) MarkFailed(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("event_id = ?", eventID).
		UpdateColumn("processed", false).Error
}

func (r *webhookEventsRepository) Find(ctx context.Context, eventID string) (*models.BillingWebhookEvent, error) {
	var row models.BillingWebhookEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}
