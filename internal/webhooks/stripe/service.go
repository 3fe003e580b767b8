package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/billing"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/metrics"
)

const (
	metadataUserID = "user_id"
	metadataPlan   = "plan"

	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeIgnored   = "ignored"
)

type planService interface {
	SetPlan(ctx context.Context, params subscriptions.SetPlanParams) (*models.Subscription, error)
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ServiceParams packages the webhook service dependencies.
type ServiceParams struct {
	Events        billing.WebhookEventsRepository
	Profiles      billing.ProfilesRepository
	BillingSubs   billing.SubscriptionsRepository
	Subscriptions planService
	Users         userRepository
	// Provider fetches the authoritative subscription object after a
	// completed checkout.
	Provider SubscriptionFetcher
	// PlanByPriceID maps Stripe price ids to local plan codes. Used when the
	// checkout metadata does not carry the plan explicitly.
	PlanByPriceID map[string]enums.PlanCode
	Logger        *logger.Logger
	Metrics       *metrics.APIMetrics
}

// Service processes Stripe webhook deliveries exactly once and keeps the
// local plan state in sync with the provider.
type Service struct {
	events        billing.WebhookEventsRepository
	profiles      billing.ProfilesRepository
	billingSubs   billing.SubscriptionsRepository
	subscriptions planService
	users         userRepository
	provider      SubscriptionFetcher
	planByPriceID map[string]enums.PlanCode
	logger        *logger.Logger
	metrics       *metrics.APIMetrics
}

// NewService validates the dependencies and builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook events repository required")
	}
	if params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing profiles repository required")
	}
	if params.BillingSubs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing subscriptions repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription fetcher required")
	}
	return &Service{
		events:        params.Events,
		profiles:      params.Profiles,
		billingSubs:   params.BillingSubs,
		subscriptions: params.Subscriptions,
		users:         params.Users,
		provider:      params.Provider,
		planByPriceID: params.PlanByPriceID,
		logger:        params.Logger,
		metrics:       params.Metrics,
	}, nil
}

// Process claims the delivery, dispatches it, and records the outcome. A
// delivery that was already processed is acknowledged without side effects;
// a handler failure leaves the claim open so the provider's retry can
// reclaim it.
func (s *Service) Process(ctx context.Context, event *stripe.Event, rawBody []byte) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	isNew, err := s.events.Claim(ctx, event.ID, string(event.Type), rawBody)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
	}
	if !isNew {
		s.countEvent(event, outcomeDuplicate)
		if s.logger != nil {
			s.logger.Info(ctx, "duplicate webhook delivery skipped")
		}
		return nil
	}

	if err := s.HandleEvent(ctx, event); err != nil {
		s.countEvent(event, outcomeFailed)
		if markErr := s.events.MarkFailed(ctx, event.ID); markErr != nil && s.logger != nil {
			s.logger.Error(ctx, "mark webhook event failed", markErr)
		}
		return err
	}

	if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark webhook event processed")
	}
	s.countEvent(event, outcomeProcessed)
	return nil
}

// HandleEvent routes a single event to its handler. Unrecognized event types
// are acknowledged and dropped.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutCompleted(ctx, &session)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.handleSubscriptionUpdated(ctx, &sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
		}
		return s.handleSubscriptionDeleted(ctx, &sub)
	default:
		s.countEvent(event, outcomeIgnored)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	userID, err := s.resolveSessionUser(session)
	if err != nil {
		return err
	}

	if session.Customer != nil && session.Customer.ID != "" {
		profile := &models.BillingProfile{
			ID:                 uuid.New(),
			UserID:             userID,
			Provider:           enums.PaymentProviderStripe,
			ProviderCustomerID: session.Customer.ID,
		}
		if err := s.profiles.Upsert(ctx, profile); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist billing profile")
		}
	}

	plan, planErr := s.resolvePlan(session.Metadata, "")

	// The session object only names the subscription; period end and the
	// cancel flag live on the subscription itself, so pull it from the
	// provider rather than assuming a fresh active state.
	if session.Subscription != nil && session.Subscription.ID != "" {
		remote, err := s.provider.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return err
		}
		if planErr != nil {
			plan, planErr = s.resolvePlan(remote.Metadata, priceIDOf(remote))
		}
		if planErr != nil {
			return planErr
		}
		status := billingStatusOf(remote)
		if err := s.billingSubs.Sync(ctx, buildBillingSubscription(remote, userID, plan, status)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync billing subscription")
		}
		if !status.IsEntitled() {
			return s.applyPlan(ctx, userID, enums.PlanFree)
		}
		return s.applyPlan(ctx, userID, plan)
	}

	if planErr != nil {
		return planErr
	}
	return s.applyPlan(ctx, userID, plan)
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := s.resolveSubscriptionUser(ctx, sub)
	if err != nil {
		return err
	}
	plan, err := s.resolvePlan(sub.Metadata, priceIDOf(sub))
	if err != nil {
		return err
	}

	status := billingStatusOf(sub)
	if err := s.billingSubs.Sync(ctx, buildBillingSubscription(sub, userID, plan, status)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync billing subscription")
	}

	if status.IsEntitled() {
		return s.applyPlan(ctx, userID, plan)
	}
	return s.applyPlan(ctx, userID, enums.PlanFree)
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := s.resolveSubscriptionUser(ctx, sub)
	if err != nil {
		return err
	}
	plan, err := s.resolvePlan(sub.Metadata, priceIDOf(sub))
	if err != nil {
		plan = enums.PlanFree
	}

	row := buildBillingSubscription(sub, userID, plan, enums.BillingSubscriptionStatusCanceled)
	if err := s.billingSubs.Sync(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync billing subscription")
	}

	return s.applyPlan(ctx, userID, enums.PlanFree)
}

// applyPlan moves the user to the target plan unless they are already on it.
// The equality guard keeps replayed provider events from stacking redundant
// subscription history rows.
func (s *Service) applyPlan(ctx context.Context, userID uuid.UUID, plan enums.PlanCode) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found for webhook event")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.Plan == plan {
		return nil
	}

	_, err = s.subscriptions.SetPlan(ctx, subscriptions.SetPlanParams{
		UserID: userID,
		Plan:   plan,
		Cycle:  enums.BillingCycleMonthly,
	})
	return err
}

func (s *Service) resolveSessionUser(session *stripe.CheckoutSession) (uuid.UUID, error) {
	if session == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	raw := session.Metadata[metadataUserID]
	if raw == "" {
		raw = session.ClientReferenceID
	}
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session carries no user reference")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse user reference")
	}
	return userID, nil
}

func (s *Service) resolveSubscriptionUser(ctx context.Context, sub *stripe.Subscription) (uuid.UUID, error) {
	if sub == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription required")
	}
	if raw := sub.Metadata[metadataUserID]; raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse user reference")
		}
		return userID, nil
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription carries no customer")
	}
	profile, err := s.profiles.FindByProviderCustomerID(ctx, enums.PaymentProviderStripe, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no billing profile for stripe customer")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load billing profile")
	}
	return profile.UserID, nil
}

func (s *Service) resolvePlan(metadata map[string]string, priceID string) (enums.PlanCode, error) {
	if raw := metadata[metadataPlan]; raw != "" {
		plan, err := enums.ParsePlanCode(raw)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse plan metadata")
		}
		return plan, nil
	}
	if priceID != "" {
		if plan, ok := s.planByPriceID[priceID]; ok {
			return plan, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, "event carries no resolvable plan")
}

func (s *Service) countEvent(event *stripe.Event, outcome string) {
	if s.metrics == nil || event == nil {
		return
	}
	s.metrics.IncWebhookEvent(string(event.Type), outcome)
}

func billingStatusOf(sub *stripe.Subscription) enums.BillingSubscriptionStatus {
	status, err := enums.ParseBillingSubscriptionStatus(string(sub.Status))
	if err != nil {
		return enums.BillingSubscriptionStatusIncomplete
	}
	return status
}

func priceIDOf(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func periodEndOf(sub *stripe.Subscription) *time.Time {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	if unix := sub.Items.Data[0].CurrentPeriodEnd; unix > 0 {
		end := time.Unix(unix, 0).UTC()
		return &end
	}
	return nil
}

func buildBillingSubscription(sub *stripe.Subscription, userID uuid.UUID, plan enums.PlanCode, status enums.BillingSubscriptionStatus) *models.BillingSubscription {
	row := &models.BillingSubscription{
		ProviderSubscriptionID: sub.ID,
		UserID:                 userID,
		Plan:                   plan,
		Status:                 status,
		CurrentPeriodEnd:       periodEndOf(sub),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	if len(sub.Metadata) > 0 {
		if raw, err := json.Marshal(sub.Metadata); err == nil {
			row.Metadata = raw
		}
	}
	return row
}
