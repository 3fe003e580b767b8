package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// OrdersRepository persists provider purchase intents.
type OrdersRepository interface {
	WithTx(tx *gorm.DB) OrdersRepository
	Upsert(ctx context.Context, order *models.BillingOrder) error
	FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.BillingOrder, error)
	FindCreatedByUserAndPlan(ctx context.Context, userID uuid.UUID, plan enums.PlanCode, cycle enums.BillingCycle) (*models.BillingOrder, error)
	MarkPaid(ctx context.Context, providerOrderID string, payload []byte) error
	MarkFailed(ctx context.Context, providerOrderID, reason string) error
}

type ordersRepository struct {
	db *gorm.DB
}

// NewOrdersRepository builds the orders repo bound to the provided DB.
func NewOrdersRepository(db *gorm.DB) OrdersRepository {
	return &ordersRepository{db: db}
}

func (r *ordersRepository) WithTx(tx *gorm.DB) OrdersRepository {
	if tx == nil {
		return r
	}
	return &ordersRepository{db: tx}
}

// Upsert writes the order, refreshing plan/amount fields when the provider
// order id already exists. Used by checkout retries while the order is still
// in created state.
func (r *ordersRepository) Upsert(ctx context.Context, order *models.BillingOrder) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan", "billing_cycle", "amount_cents", "currency", "status", "updated_at",
		}),
	}).Create(order).Error
}

func (r *ordersRepository) FindByProviderOrderID(ctx context.Context, providerOrderID string) (*models.BillingOrder, error) {
	var order models.BillingOrder
	err := r.db.WithContext(ctx).
		Where("provider_order_id = ?", providerOrderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *ordersRepository) FindCreatedByUserAndPlan(ctx context.Context, userID uuid.UUID, plan enums.PlanCode, cycle enums.BillingCycle) (*models.BillingOrder, error) {
	var order models.BillingOrder
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND plan = ? AND billing_cycle = ? AND status = ?",
			userID, plan, cycle, enums.OrderStatusCreated).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *ordersRepository) MarkPaid(ctx context.Context, providerOrderID string, payload []byte) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingOrder{}).
		Where("provider_order_id = ?", providerOrderID).
		Updates(map[string]any{
			"status":          enums.OrderStatusPaid,
			"payment_payload": payload,
			"failure_reason":  nil,
		}).Error
}

func (r *ordersRepository) MarkFailed(ctx context.Context, providerOrderID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingOrder{}).
		Where("provider_order_id = ?", providerOrderID).
		Updates(map[string]any{
			"status":         enums.OrderStatusFailed,
			"failure_reason": reason,
		}).Error
}
