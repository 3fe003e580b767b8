package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/audit"
	"github.com/promptlens/promptlens-backend/internal/users"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

// AuditActionPlanSet is recorded when an admin changes a user's plan.
const AuditActionPlanSet = "plan.set"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SetPlanParams describes one plan transition.
type SetPlanParams struct {
	UserID uuid.UUID
	Plan   enums.PlanCode
	Cycle  enums.BillingCycle
	// ActorAdminID is set when the transition was triggered by staff; it
	// produces an audit row.
	ActorAdminID *uuid.UUID
}

// Service is the single place plan transitions happen.
type Service interface {
	SetPlan(ctx context.Context, params SetPlanParams) (*models.Subscription, error)
	GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	ChangePlanSelf(ctx context.Context, userID uuid.UUID, plan enums.PlanCode) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Catalog() *Catalog
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	DB      txRunner
	Repo    Repository
	Catalog *Catalog
	Logger  *logger.Logger
}

type service struct {
	db      txRunner
	repo    Repository
	catalog *Catalog
	logger  *logger.Logger
	now     func() time.Time
}

// NewService validates the dependencies and builds the plan service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	return &service{
		db:      params.DB,
		repo:    params.Repo,
		catalog: params.Catalog,
		logger:  params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) Catalog() *Catalog {
	return s.catalog
}

// SetPlan cancels any active subscription rows, inserts the new active row,
// and keeps the user's denormalized plan column in step, all in one
// transaction. Admin-triggered transitions append an audit row.
func (s *service) SetPlan(ctx context.Context, params SetPlanParams) (*models.Subscription, error) {
	plan, ok := s.catalog.Plan(params.Plan)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan")
	}
	cycle := params.Cycle
	if !cycle.IsValid() {
		cycle = enums.BillingCycleMonthly
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		ID:         uuid.New(),
		UserID:     params.UserID,
		Plan:       plan.Code,
		Status:     enums.SubscriptionStatusActive,
		PriceCents: s.catalog.PriceCents(plan.Code, cycle),
		StartedAt:  now,
		RenewsAt:   renewalFrom(now, cycle),
	}
	if plan.MonthlyQuota != nil {
		quota := *plan.MonthlyQuota
		sub.MonthlyQuota = &quota
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CancelActiveByUser(ctx, params.UserID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel active subscriptions")
		}
		if _, err := repo.Create(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}
		if err := users.NewRepository(tx).UpdatePlan(ctx, params.UserID, plan.Code); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user plan")
		}
		if params.ActorAdminID != nil {
			entry := audit.Entry{
				ActorID:      *params.ActorAdminID,
				Action:       AuditActionPlanSet,
				TargetUserID: &params.UserID,
				Metadata: map[string]any{
					"plan":  plan.Code.String(),
					"cycle": cycle.String(),
				},
			}
			if err := audit.NewRepository(tx).Append(ctx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append audit entry")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		lctx := s.logger.WithFields(ctx, map[string]any{
			"user_id": params.UserID.String(),
			"plan":    plan.Code.String(),
		})
		s.logger.Info(lctx, "plan transition applied")
	}
	return sub, nil
}

// GetOrCreateActive returns the user's active subscription, creating a free
// one when the row is missing.
func (s *service) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindActiveByUser(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
	}
	return s.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanFree})
}

// ChangePlanSelf applies a self-service transition. Upgrades require payment,
// so only equal or lower ranked targets are accepted; an equal-rank request
// is a no-op that returns the current subscription.
func (s *service) ChangePlanSelf(ctx context.Context, userID uuid.UUID, plan enums.PlanCode) (*models.Subscription, error) {
	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan")
	}
	current, err := s.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if plan.Rank() > current.Plan.Rank() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "upgrades require a completed payment")
	}
	if plan == current.Plan {
		return current, nil
	}
	return s.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: plan})
}

// Cancel drops the user to the free plan immediately. There are no refunds
// for the unused remainder of a paid period.
func (s *service) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return s.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanFree})
}

func renewalFrom(start time.Time, cycle enums.BillingCycle) time.Time {
	if cycle == enums.BillingCycleAnnual {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
