package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/billing"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	stripewebhook "github.com/promptlens/promptlens-backend/internal/webhooks/stripe"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

const testWebhookSecret = "whsec_test_secret"

type eventRow struct {
	processed bool
}

type stubEventsRepo struct {
	rows map[string]*eventRow
}

func newStubEventsRepo() *stubEventsRepo {
	return &stubEventsRepo{rows: map[string]*eventRow{}}
}

func (r *stubEventsRepo) WithTx(*gorm.DB) billing.WebhookEventsRepository { return r }

func (r *stubEventsRepo) Claim(_ context.Context, eventID, _ string, _ []byte) (bool, error) {
	if row, ok := r.rows[eventID]; ok && row.processed {
		return false, nil
	}
	r.rows[eventID] = &eventRow{}
	return true, nil
}

func (r *stubEventsRepo) MarkProcessed(_ context.Context, eventID string) error {
	if row, ok := r.rows[eventID]; ok {
		row.processed = true
	}
	return nil
}

func (r *stubEventsRepo) MarkFailed(context.Context, string) error { return nil }

func (r *stubEventsRepo) Find(_ context.Context, eventID string) (*models.BillingWebhookEvent, error) {
	if _, ok := r.rows[eventID]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.BillingWebhookEvent{EventID: eventID, Processed: r.rows[eventID].processed}, nil
}

type stubProfilesRepo struct{}

func (stubProfilesRepo) WithTx(*gorm.DB) billing.ProfilesRepository               { return stubProfilesRepo{} }
func (stubProfilesRepo) Upsert(context.Context, *models.BillingProfile) error     { return nil }
func (stubProfilesRepo) FindByUserAndProvider(context.Context, uuid.UUID, enums.PaymentProvider) (*models.BillingProfile, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubProfilesRepo) FindByProviderCustomerID(context.Context, enums.PaymentProvider, string) (*models.BillingProfile, error) {
	return nil, gorm.ErrRecordNotFound
}

type stubBillingSubs struct{}

func (stubBillingSubs) WithTx(*gorm.DB) billing.SubscriptionsRepository          { return stubBillingSubs{} }
func (stubBillingSubs) Sync(context.Context, *models.BillingSubscription) error  { return nil }
func (stubBillingSubs) FindByProviderSubscriptionID(context.Context, string) (*models.BillingSubscription, error) {
	return nil, gorm.ErrRecordNotFound
}
func (stubBillingSubs) FindByUser(context.Context, uuid.UUID) ([]models.BillingSubscription, error) {
	return nil, nil
}

type stubUsersRepo struct {
	user *models.User
}

func (r *stubUsersRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if r.user == nil || r.user.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return r.user, nil
}

type stubPlanService struct {
	user *models.User
}

func (s *stubPlanService) SetPlan(_ context.Context, params subscriptions.SetPlanParams) (*models.Subscription, error) {
	if s.user != nil && s.user.ID == params.UserID {
		s.user.Plan = params.Plan
	}
	return &models.Subscription{UserID: params.UserID, Plan: params.Plan}, nil
}

type stubSubscriptionFetcher struct{}

func (stubSubscriptionFetcher) GetSubscription(context.Context, string) (*stripe.Subscription, error) {
	return nil, fmt.Errorf("no remote subscription available")
}

type webhookHarness struct {
	handler http.HandlerFunc
	events  *stubEventsRepo
	user    *models.User
}

func newWebhookHarness(t *testing.T) *webhookHarness {
	t.Helper()

	user := &models.User{ID: uuid.New(), Plan: enums.PlanFree}
	events := newStubEventsRepo()
	svc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Events:        events,
		Profiles:      stubProfilesRepo{},
		BillingSubs:   stubBillingSubs{},
		Subscriptions: &stubPlanService{user: user},
		Users:         &stubUsersRepo{user: user},
		Provider:      stubSubscriptionFetcher{},
		Logger:        logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled}),
	})
	if err != nil {
		t.Fatalf("build webhook service: %v", err)
	}

	return &webhookHarness{
		handler: Stripe(svc, testWebhookSecret, logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})),
		events:  events,
		user:    user,
	}
}

func signPayload(secret, payload string) string {
	const timestamp = "1756700000"
	return fmt.Sprintf("t=%s,v1=%s", timestamp, security.SignHMACHex(secret, timestamp+"."+payload))
}

func (h *webhookHarness) deliver(t *testing.T, payload, sigHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rec := httptest.NewRecorder()
	h.handler(rec, req)
	return rec
}

func checkoutPayload(eventID string, userID uuid.UUID) string {
	return fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{"client_reference_id":%q,"metadata":{"plan":"pro"}}}}`, eventID, userID)
}

func TestStripeWebhook_ValidSignatureAppliesPlan(t *testing.T) {
	h := newWebhookHarness(t)
	payload := checkoutPayload("evt_ok", h.user.ID)

	rec := h.deliver(t, payload, signPayload(testWebhookSecret, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if h.user.Plan != enums.PlanPro {
		t.Fatalf("plan = %s, want %s", h.user.Plan, enums.PlanPro)
	}
	if !h.events.rows["evt_ok"].processed {
		t.Fatal("event not marked processed")
	}
}

func TestStripeWebhook_MissingSignatureHeaderRejected(t *testing.T) {
	h := newWebhookHarness(t)
	payload := checkoutPayload("evt_nosig", h.user.ID)

	rec := h.deliver(t, payload, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if _, claimed := h.events.rows["evt_nosig"]; claimed {
		t.Fatal("unverified delivery must not be claimed")
	}
}

func TestStripeWebhook_BadSignatureRejected(t *testing.T) {
	h := newWebhookHarness(t)
	payload := checkoutPayload("evt_bad", h.user.ID)

	rec := h.deliver(t, payload, signPayload("whsec_other_secret", payload))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if h.user.Plan != enums.PlanFree {
		t.Fatal("forged delivery must not change the plan")
	}
}

func TestStripeWebhook_HandlerFailureStillAcknowledged(t *testing.T) {
	h := newWebhookHarness(t)
	// No user reference anywhere in the session, so the handler fails.
	payload := `{"id":"evt_fail","type":"checkout.session.completed","data":{"object":{"metadata":{"plan":"pro"}}}}`

	rec := h.deliver(t, payload, signPayload(testWebhookSecret, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if h.events.rows["evt_fail"].processed {
		t.Fatal("failed event must stay unprocessed for the provider retry")
	}
}

func TestStripeWebhook_DuplicateDeliveryAcknowledged(t *testing.T) {
	h := newWebhookHarness(t)
	payload := checkoutPayload("evt_dup", h.user.ID)
	sig := signPayload(testWebhookSecret, payload)

	if rec := h.deliver(t, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", rec.Code)
	}
	if rec := h.deliver(t, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("replayed delivery status = %d", rec.Code)
	}
}
