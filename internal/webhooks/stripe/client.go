package stripewebhook

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/subscription"

	"github.com/promptlens/promptlens-backend/pkg/config"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

// SubscriptionFetcher is the outbound provider surface the webhook service
// needs: pulling the authoritative subscription object after checkout.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// Client wraps the Stripe API with logging and error mapping.
type Client struct {
	environment string
	logger      *logger.Logger
}

// NewClient initializes Stripe once with the configured secret key.
func NewClient(cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe api key required")
	}
	stripe.Key = apiKey
	return &Client{environment: cfg.Environment(), logger: logg}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// GetSubscription retrieves a subscription object from Stripe.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		if c.logger != nil {
			c.logger.Error(ctx, "stripe subscription fetch failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	return sub, nil
}
