package razorpay

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/billing"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

const testKeySecret = "rzp_secret_test"

type fakeProvider struct {
	orders      []CreateOrderParams
	orderID     string
	payment     *Payment
	fetchErr    error
	createErr   error
	fetchCalled int
}

func (f *fakeProvider) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.orders = append(f.orders, params)
	return &Order{
		ID:          f.orderID,
		AmountCents: params.AmountCents,
		Currency:    params.Currency,
		Receipt:     params.Receipt,
		Status:      "created",
	}, nil
}

func (f *fakeProvider) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	f.fetchCalled++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payment, nil
}

type fakeOrdersRepo struct {
	rows map[string]*models.BillingOrder
}

func newFakeOrdersRepo() *fakeOrdersRepo {
	return &fakeOrdersRepo{rows: make(map[string]*models.BillingOrder)}
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) billing.OrdersRepository { return f }

func (f *fakeOrdersRepo) Upsert(ctx context.Context, order *models.BillingOrder) error {
	copied := *order
	f.rows[order.ProviderOrderID] = &copied
	return nil
}

func (f *fakeOrdersRepo) FindByProviderOrderID(ctx context.Context, id string) (*models.BillingOrder, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeOrdersRepo) FindCreatedByUserAndPlan(ctx context.Context, userID uuid.UUID, plan enums.PlanCode, cycle enums.BillingCycle) (*models.BillingOrder, error) {
	for _, row := range f.rows {
		if row.UserID == userID && row.Plan == plan && row.BillingCycle == cycle && row.Status == enums.OrderStatusCreated {
			copied := *row
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) MarkPaid(ctx context.Context, id string, payload []byte) error {
	row, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.Status = enums.OrderStatusPaid
	row.PaymentPayload = payload
	row.FailureReason = nil
	return nil
}

func (f *fakeOrdersRepo) MarkFailed(ctx context.Context, id, reason string) error {
	row, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.Status = enums.OrderStatusFailed
	row.FailureReason = &reason
	return nil
}

type planTransition struct {
	userID uuid.UUID
	plan   enums.PlanCode
	cycle  enums.BillingCycle
}

type fakeSubscriptions struct {
	catalog     *subscriptions.Catalog
	currentPlan enums.PlanCode
	transitions []planTransition
	setPlanErr  error
}

func newFakeSubscriptions(current enums.PlanCode) *fakeSubscriptions {
	return &fakeSubscriptions{
		catalog: subscriptions.NewCatalog(config.PricingConfig{
			ProMonthlyCents:       900,
			UnlimitedMonthlyCents: 1900,
			AnnualDiscount:        0.20,
			USDToINR:              84.0,
			USDToEUR:              0.92,
			FreeMonthlyQuota:      20,
			ProMonthlyQuota:       500,
		}),
		currentPlan: current,
	}
}

func (f *fakeSubscriptions) SetPlan(ctx context.Context, params subscriptions.SetPlanParams) (*models.Subscription, error) {
	if f.setPlanErr != nil {
		return nil, f.setPlanErr
	}
	f.transitions = append(f.transitions, planTransition{
		userID: params.UserID,
		plan:   params.Plan,
		cycle:  params.Cycle,
	})
	f.currentPlan = params.Plan
	return &models.Subscription{UserID: params.UserID, Plan: params.Plan}, nil
}

func (f *fakeSubscriptions) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{UserID: userID, Plan: f.currentPlan}, nil
}

func (f *fakeSubscriptions) ChangePlanSelf(ctx context.Context, userID uuid.UUID, plan enums.PlanCode) (*models.Subscription, error) {
	return nil, errors.New("not used")
}

func (f *fakeSubscriptions) Cancel(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return nil, errors.New("not used")
}

func (f *fakeSubscriptions) Catalog() *subscriptions.Catalog {
	return f.catalog
}

func newTestService(t *testing.T, provider *fakeProvider, orders *fakeOrdersRepo, subs *fakeSubscriptions) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Provider:      provider,
		KeyID:         "rzp_test_key",
		KeySecret:     testKeySecret,
		Orders:        orders,
		Subscriptions: subs,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedOrder(orders *fakeOrdersRepo, userID uuid.UUID) *models.BillingOrder {
	order := &models.BillingOrder{
		ProviderOrderID: "order_123",
		Provider:        enums.PaymentProviderRazorpay,
		UserID:          userID,
		Plan:            enums.PlanPro,
		BillingCycle:    enums.BillingCycleMonthly,
		AmountCents:     75600,
		Currency:        enums.CurrencyINR,
		Status:          enums.OrderStatusCreated,
	}
	orders.rows[order.ProviderOrderID] = order
	return order
}

func signFor(orderID, paymentID string) string {
	return security.SignHMACHex(testKeySecret, orderID+"|"+paymentID)
}

func capturedPayment(orderID string, amount int64) *Payment {
	return &Payment{
		ID:          "pay_123",
		OrderID:     orderID,
		Status:      "captured",
		AmountCents: amount,
		Currency:    "INR",
		Method:      "upi",
		Raw:         map[string]any{"id": "pay_123"},
	}
}

func TestCreateCheckoutUpgradeOnly(t *testing.T) {
	provider := &fakeProvider{orderID: "order_123"}
	orders := newFakeOrdersRepo()
	subs := newFakeSubscriptions(enums.PlanPro)
	svc := newTestService(t, provider, orders, subs)

	// Pro -> Pro is not an upgrade.
	_, err := svc.CreateCheckout(context.Background(), CheckoutParams{
		UserID:   uuid.New(),
		Plan:     enums.PlanPro,
		Cycle:    enums.BillingCycleMonthly,
		Currency: enums.CurrencyINR,
	})
	if err == nil {
		t.Fatal("expected error for non-upgrade checkout")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	// Free plans cannot be bought.
	_, err = svc.CreateCheckout(context.Background(), CheckoutParams{
		UserID: uuid.New(),
		Plan:   enums.PlanFree,
	})
	if err == nil {
		t.Fatal("expected error for free-plan checkout")
	}
}

func TestCreateCheckoutPersistsOrder(t *testing.T) {
	provider := &fakeProvider{orderID: "order_123"}
	orders := newFakeOrdersRepo()
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)
	userID := uuid.New()

	dto, err := svc.CreateCheckout(context.Background(), CheckoutParams{
		UserID:   userID,
		Plan:     enums.PlanPro,
		Cycle:    enums.BillingCycleMonthly,
		Currency: enums.CurrencyINR,
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if dto.ProviderOrderID != "order_123" {
		t.Fatalf("unexpected order id %q", dto.ProviderOrderID)
	}
	// 900 USD cents * 84 INR rate.
	if dto.AmountCents != 75600 {
		t.Fatalf("unexpected amount %d", dto.AmountCents)
	}
	if dto.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected key id %q", dto.KeyID)
	}

	row, ok := orders.rows["order_123"]
	if !ok {
		t.Fatal("expected billing order row")
	}
	if row.Status != enums.OrderStatusCreated || row.UserID != userID {
		t.Fatalf("unexpected row %+v", row)
	}

	if len(provider.orders) != 1 {
		t.Fatalf("expected one provider order, got %d", len(provider.orders))
	}
	if got := provider.orders[0].Receipt; len(got) == 0 || len(got) > 40 {
		t.Fatalf("receipt length out of range: %q", got)
	}
}

func TestCreateCheckoutReusesPendingOrder(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	pending := seedOrder(orders, userID)
	provider := &fakeProvider{orderID: "order_fresh"}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	dto, err := svc.CreateCheckout(context.Background(), CheckoutParams{
		UserID:   userID,
		Plan:     enums.PlanPro,
		Cycle:    enums.BillingCycleMonthly,
		Currency: enums.CurrencyINR,
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if dto.ProviderOrderID != pending.ProviderOrderID {
		t.Fatalf("expected pending order reused, got %q", dto.ProviderOrderID)
	}
	if dto.AmountCents != pending.AmountCents {
		t.Fatalf("unexpected amount %d", dto.AmountCents)
	}
	if len(provider.orders) != 0 {
		t.Fatalf("expected no new provider order, got %d", len(provider.orders))
	}

	// A different currency cannot reuse the INR order.
	dto, err = svc.CreateCheckout(context.Background(), CheckoutParams{
		UserID:   userID,
		Plan:     enums.PlanPro,
		Cycle:    enums.BillingCycleMonthly,
		Currency: enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if dto.ProviderOrderID != "order_fresh" {
		t.Fatalf("expected fresh order for new currency, got %q", dto.ProviderOrderID)
	}
	if len(provider.orders) != 1 {
		t.Fatalf("expected one provider order, got %d", len(provider.orders))
	}
}

func TestVerifyPaymentHappyPath(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, userID)
	provider := &fakeProvider{payment: capturedPayment(order.ProviderOrderID, order.AmountCents)}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	dto, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    userID,
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: signFor(order.ProviderOrderID, "pay_123"),
	})
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if dto.Status != "paid" || dto.Plan != enums.PlanPro {
		t.Fatalf("unexpected result %+v", dto)
	}

	if len(subs.transitions) != 1 {
		t.Fatalf("expected one plan transition, got %d", len(subs.transitions))
	}
	if subs.transitions[0].plan != enums.PlanPro || subs.transitions[0].userID != userID {
		t.Fatalf("unexpected transition %+v", subs.transitions[0])
	}
	if orders.rows[order.ProviderOrderID].Status != enums.OrderStatusPaid {
		t.Fatal("order should be marked paid")
	}
	if len(orders.rows[order.ProviderOrderID].PaymentPayload) == 0 {
		t.Fatal("raw payment payload should be attached")
	}
}

func TestVerifyPaymentIdempotentWhenPaid(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, userID)
	order.Status = enums.OrderStatusPaid
	provider := &fakeProvider{}
	subs := newFakeSubscriptions(enums.PlanPro)
	svc := newTestService(t, provider, orders, subs)

	dto, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    userID,
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: "anything",
	})
	if err != nil {
		t.Fatalf("verify paid order: %v", err)
	}
	if dto.Status != "paid" {
		t.Fatalf("unexpected status %q", dto.Status)
	}
	if provider.fetchCalled != 0 {
		t.Fatal("paid order must not hit the provider again")
	}
	if len(subs.transitions) != 0 {
		t.Fatal("paid order must not transition the plan again")
	}
}

func TestVerifyPaymentRejectsMutatedSignature(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, userID)
	provider := &fakeProvider{payment: capturedPayment(order.ProviderOrderID, order.AmountCents)}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	valid := signFor(order.ProviderOrderID, "pay_123")
	mutated := []byte(valid)
	mutated[0] ^= 0x01

	_, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    userID,
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: string(mutated),
	})
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeSignatureInvalid {
		t.Fatalf("expected signature invalid, got %v", err)
	}
	if orders.rows[order.ProviderOrderID].Status != enums.OrderStatusFailed {
		t.Fatal("order should be marked failed")
	}
	if len(subs.transitions) != 0 {
		t.Fatal("failed verification must not transition the plan")
	}
}

func TestVerifyPaymentAmountMismatch(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, userID)
	provider := &fakeProvider{payment: capturedPayment(order.ProviderOrderID, order.AmountCents-100)}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	_, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    userID,
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: signFor(order.ProviderOrderID, "pay_123"),
	})
	if err == nil {
		t.Fatal("expected amount mismatch rejection")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodePaymentMismatch {
		t.Fatalf("expected payment mismatch, got %v", err)
	}
	row := orders.rows[order.ProviderOrderID]
	if row.Status != enums.OrderStatusFailed || row.FailureReason == nil {
		t.Fatal("order should be failed with a reason")
	}
	if len(subs.transitions) != 0 {
		t.Fatal("mismatch must not transition the plan")
	}
}

func TestVerifyPaymentUncapturedStatus(t *testing.T) {
	userID := uuid.New()
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, userID)
	payment := capturedPayment(order.ProviderOrderID, order.AmountCents)
	payment.Status = "failed"
	provider := &fakeProvider{payment: payment}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	_, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    userID,
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: signFor(order.ProviderOrderID, "pay_123"),
	})
	if err == nil {
		t.Fatal("expected rejection for uncaptured payment")
	}
	if orders.rows[order.ProviderOrderID].Status != enums.OrderStatusFailed {
		t.Fatal("order should be marked failed")
	}
}

func TestVerifyPaymentWrongUser(t *testing.T) {
	orders := newFakeOrdersRepo()
	order := seedOrder(orders, uuid.New())
	provider := &fakeProvider{}
	subs := newFakeSubscriptions(enums.PlanFree)
	svc := newTestService(t, provider, orders, subs)

	_, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    uuid.New(),
		OrderID:   order.ProviderOrderID,
		PaymentID: "pay_123",
		Signature: signFor(order.ProviderOrderID, "pay_123"),
	})
	if err == nil {
		t.Fatal("expected rejection for foreign order")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	svc := newTestService(t, &fakeProvider{}, newFakeOrdersRepo(), newFakeSubscriptions(enums.PlanFree))

	_, err := svc.VerifyPayment(context.Background(), VerifyParams{
		UserID:    uuid.New(),
		OrderID:   "order_missing",
		PaymentID: "pay_123",
		Signature: "sig",
	})
	if err == nil {
		t.Fatal("expected not found")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
