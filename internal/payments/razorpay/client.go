package razorpay

import (
	"context"
	"errors"
	"strings"

	razorpaysdk "github.com/razorpay/razorpay-go"

	"github.com/promptlens/promptlens-backend/pkg/config"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

var (
	errKeyIDRequired     = errors.New("razorpay key id is required")
	errKeySecretRequired = errors.New("razorpay key secret is required")
	errLoggerRequired    = errors.New("razorpay logger is required")
)

// Order is the provider-side order shape the service relies on.
type Order struct {
	ID          string
	AmountCents int64
	Currency    string
	Receipt     string
	Status      string
}

// Payment is the provider-side payment shape used for cross-checks.
type Payment struct {
	ID          string
	OrderID     string
	Status      string
	AmountCents int64
	Currency    string
	Method      string
	Raw         map[string]any
}

// CreateOrderParams describes one provider order.
type CreateOrderParams struct {
	AmountCents int64
	Currency    string
	Receipt     string
	Notes       map[string]any
}

// ProviderClient is the surface the service needs from the Razorpay SDK.
type ProviderClient interface {
	CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// Client wraps the Razorpay SDK with logging and error mapping.
type Client struct {
	sdk       *razorpaysdk.Client
	keyID     string
	keySecret string
	logger    *logger.Logger
}

// NewClient validates the credentials and builds the Razorpay wrapper.
func NewClient(cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	return &Client{
		sdk:       razorpaysdk.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
		logger:    logg,
	}, nil
}

// KeyID returns the public key id handed to the browser checkout widget.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// KeySecret returns the secret used for payment signature verification.
func (c *Client) KeySecret() string {
	if c == nil {
		return ""
	}
	return c.keySecret
}

// CreateOrder registers an order with Razorpay.
func (c *Client) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	data := map[string]any{
		"amount":   params.AmountCents,
		"currency": params.Currency,
		"receipt":  params.Receipt,
	}
	if len(params.Notes) > 0 {
		data["notes"] = params.Notes
	}

	body, err := c.sdk.Order.Create(data, nil)
	if err != nil {
		c.logger.Error(ctx, "razorpay create order failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider order")
	}

	order := &Order{
		ID:          mapString(body, "id"),
		AmountCents: mapInt64(body, "amount"),
		Currency:    mapString(body, "currency"),
		Receipt:     mapString(body, "receipt"),
		Status:      mapString(body, "status"),
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider order response missing id")
	}

	lctx := c.logger.WithFields(ctx, map[string]any{
		"provider_order_id": order.ID,
		"amount_cents":      order.AmountCents,
		"currency":          order.Currency,
	})
	c.logger.Info(lctx, "razorpay order created")
	return order, nil
}

// FetchPayment loads a payment by id for server-side cross-checks.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	body, err := c.sdk.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		c.logger.Error(ctx, "razorpay fetch payment failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch provider payment")
	}

	payment := &Payment{
		ID:          mapString(body, "id"),
		OrderID:     mapString(body, "order_id"),
		Status:      mapString(body, "status"),
		AmountCents: mapInt64(body, "amount"),
		Currency:    mapString(body, "currency"),
		Method:      mapString(body, "method"),
		Raw:         body,
	}
	if payment.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider payment response missing id")
	}
	return payment, nil
}

func mapString(body map[string]any, key string) string {
	if v, ok := body[key].(string); ok {
		return v
	}
	return ""
}

// mapInt64 tolerates the JSON number forms the SDK hands back.
func mapInt64(body map[string]any, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
