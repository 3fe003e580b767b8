package razorpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/billing"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/metrics"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

const (
	paymentStatusCaptured   = "captured"
	paymentStatusAuthorized = "authorized"
)

// CheckoutParams describes a checkout order request.
type CheckoutParams struct {
	UserID   uuid.UUID
	Plan     enums.PlanCode
	Cycle    enums.BillingCycle
	Currency enums.Currency
}

// CheckoutDTO is returned to the browser to open the payment widget.
type CheckoutDTO struct {
	ProviderOrderID string             `json:"provider_order_id"`
	KeyID           string             `json:"key_id"`
	AmountCents     int64              `json:"amount_cents"`
	Currency        enums.Currency     `json:"currency"`
	Plan            enums.PlanCode     `json:"plan"`
	Cycle           enums.BillingCycle `json:"cycle"`
}

// VerifyParams carries the browser's post-payment callback payload.
type VerifyParams struct {
	UserID    uuid.UUID
	OrderID   string
	PaymentID string
	Signature string
}

// VerifyDTO reports the reconciliation outcome.
type VerifyDTO struct {
	OrderID string         `json:"order_id"`
	Status  string         `json:"status"`
	Plan    enums.PlanCode `json:"plan"`
}

// Service runs the synchronous Razorpay purchase path: order creation before
// payment, signature plus provider cross-check afterwards.
type Service interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutDTO, error)
	VerifyPayment(ctx context.Context, params VerifyParams) (*VerifyDTO, error)
}

// ServiceParams packages the service dependencies.
type ServiceParams struct {
	Provider      ProviderClient
	KeyID         string
	KeySecret     string
	Orders        billing.OrdersRepository
	Subscriptions subscriptions.Service
	Logger        *logger.Logger
	Metrics       *metrics.APIMetrics
}

type service struct {
	provider  ProviderClient
	keyID     string
	keySecret string
	orders    billing.OrdersRepository
	subs      subscriptions.Service
	logger    *logger.Logger
	metrics   *metrics.APIMetrics
}

// NewService validates the dependencies and builds the payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider client required")
	}
	if params.KeySecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing secret required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	return &service{
		provider:  params.Provider,
		keyID:     params.KeyID,
		keySecret: params.KeySecret,
		orders:    params.Orders,
		subs:      params.Subscriptions,
		logger:    params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// CreateCheckout registers a provider order for an upgrade and mirrors it
// into billing_orders. Retrying a checkout refreshes the local row.
func (s *service) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutDTO, error) {
	if !params.Plan.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout requires a paid plan")
	}
	cycle := params.Cycle
	if !cycle.IsValid() {
		cycle = enums.BillingCycleMonthly
	}
	currency := params.Currency
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}

	current, err := s.subs.GetOrCreateActive(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if params.Plan.Rank() <= current.Plan.Rank() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is only for plan upgrades")
	}

	// A retried checkout for the same upgrade reuses the pending provider
	// order instead of minting a new one.
	if existing, err := s.orders.FindCreatedByUserAndPlan(ctx, params.UserID, params.Plan, cycle); err == nil {
		if existing.Currency == currency {
			return &CheckoutDTO{
				ProviderOrderID: existing.ProviderOrderID,
				KeyID:           s.keyID,
				AmountCents:     existing.AmountCents,
				Currency:        existing.Currency,
				Plan:            existing.Plan,
				Cycle:           existing.BillingCycle,
			}, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pending order")
	}

	usdCents := s.subs.Catalog().PriceCents(params.Plan, cycle)
	amountCents := s.subs.Catalog().ConvertCents(usdCents, currency)
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "computed amount is not positive")
	}

	order, err := s.provider.CreateOrder(ctx, CreateOrderParams{
		AmountCents: amountCents,
		Currency:    string(currency),
		Receipt:     checkoutReceipt(params.UserID, params.Plan, cycle),
		Notes: map[string]any{
			"user_id": params.UserID.String(),
			"plan":    params.Plan.String(),
			"cycle":   cycle.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	row := &models.BillingOrder{
		ProviderOrderID: order.ID,
		Provider:        enums.PaymentProviderRazorpay,
		UserID:          params.UserID,
		Plan:            params.Plan,
		BillingCycle:    cycle,
		AmountCents:     amountCents,
		Currency:        currency,
		Status:          enums.OrderStatusCreated,
	}
	if err := s.orders.Upsert(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist billing order")
	}

	return &CheckoutDTO{
		ProviderOrderID: order.ID,
		KeyID:           s.keyID,
		AmountCents:     amountCents,
		Currency:        currency,
		Plan:            params.Plan,
		Cycle:           cycle,
	}, nil
}

// VerifyPayment reconciles a completed browser payment. Verifying an already
// paid order is a no-op success; every abort path records its reason on the
// order before returning.
func (s *service) VerifyPayment(ctx context.Context, params VerifyParams) (*VerifyDTO, error) {
	order, err := s.orders.FindByProviderOrderID(ctx, params.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.countVerify("unknown_order")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load billing order")
	}
	if order.UserID != params.UserID {
		s.countVerify("wrong_user")
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another account")
	}
	if order.Status == enums.OrderStatusPaid {
		s.countVerify("already_paid")
		return &VerifyDTO{OrderID: order.ProviderOrderID, Status: order.Status.String(), Plan: order.Plan}, nil
	}
	if order.Status == enums.OrderStatusFailed {
		s.countVerify("already_failed")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already failed, start a new checkout")
	}

	expected := security.SignHMACHex(s.keySecret, params.OrderID+"|"+params.PaymentID)
	if !security.ConstantTimeEquals(expected, strings.TrimSpace(params.Signature)) {
		return nil, s.failOrder(ctx, order, "signature mismatch", pkgerrors.CodeSignatureInvalid, "payment signature is invalid")
	}

	payment, err := s.provider.FetchPayment(ctx, params.PaymentID)
	if err != nil {
		s.countVerify("provider_error")
		return nil, err
	}
	if payment.OrderID != order.ProviderOrderID {
		return nil, s.failOrder(ctx, order, "payment references a different order", pkgerrors.CodePaymentMismatch, "payment does not match the order")
	}
	if payment.Status != paymentStatusCaptured && payment.Status != paymentStatusAuthorized {
		reason := fmt.Sprintf("payment status %q not accepted", payment.Status)
		return nil, s.failOrder(ctx, order, reason, pkgerrors.CodePaymentMismatch, "payment was not captured")
	}
	if payment.AmountCents > 0 && order.AmountCents > 0 && payment.AmountCents != order.AmountCents {
		reason := fmt.Sprintf("amount mismatch: paid %d, expected %d", payment.AmountCents, order.AmountCents)
		return nil, s.failOrder(ctx, order, reason, pkgerrors.CodePaymentMismatch, "paid amount does not match the order")
	}
	if payment.Currency != "" && !strings.EqualFold(payment.Currency, string(order.Currency)) {
		reason := fmt.Sprintf("currency mismatch: paid %s, expected %s", payment.Currency, order.Currency)
		return nil, s.failOrder(ctx, order, reason, pkgerrors.CodePaymentMismatch, "paid currency does not match the order")
	}

	if _, err := s.subs.SetPlan(ctx, subscriptions.SetPlanParams{
		UserID: order.UserID,
		Plan:   order.Plan,
		Cycle:  order.BillingCycle,
	}); err != nil {
		s.countVerify("transition_error")
		return nil, err
	}

	payload, marshalErr := json.Marshal(payment.Raw)
	if marshalErr != nil {
		payload = nil
	}
	if err := s.orders.MarkPaid(ctx, order.ProviderOrderID, payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}

	s.countVerify("verified")
	if s.logger != nil {
		lctx := s.logger.WithFields(ctx, map[string]any{
			"provider_order_id": order.ProviderOrderID,
			"plan":              order.Plan.String(),
		})
		s.logger.Info(lctx, "payment verified")
	}
	return &VerifyDTO{
		OrderID: order.ProviderOrderID,
		Status:  enums.OrderStatusPaid.String(),
		Plan:    order.Plan,
	}, nil
}

// failOrder persists the abort reason and returns the domain error. The plan
// transition never runs on any failure path.
func (s *service) failOrder(ctx context.Context, order *models.BillingOrder, reason string, code pkgerrors.Code, message string) error {
	s.countVerify("rejected")
	if err := s.orders.MarkFailed(ctx, order.ProviderOrderID, reason); err != nil && s.logger != nil {
		s.logger.Error(ctx, "mark order failed", err)
	}
	return pkgerrors.New(code, message)
}

func (s *service) countVerify(outcome string) {
	s.metrics.IncPaymentVerify(enums.PaymentProviderRazorpay.String(), outcome)
}

// checkoutReceipt is deterministic so provider-side retries collapse onto the
// same receipt. Razorpay caps receipts at 40 characters.
func checkoutReceipt(userID uuid.UUID, plan enums.PlanCode, cycle enums.BillingCycle) string {
	receipt := fmt.Sprintf("pl_%s_%s_%s", shortID(userID), plan, cycle)
	if len(receipt) > 40 {
		receipt = receipt[:40]
	}
	return receipt
}

func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}
