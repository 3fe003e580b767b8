package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/promptlens/promptlens-backend/api/responses"
	stripewebhook "github.com/promptlens/promptlens-backend/internal/webhooks/stripe"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20 // 1 MiB, well above Stripe's payload sizes

// Stripe verifies the Stripe-Signature header against the raw payload and
// hands the event to the webhook service. A handler failure after a valid
// signature is still acknowledged with 200: the event row stays unprocessed
// so Stripe's retry delivery can pick it up again.
func Stripe(svc *stripewebhook.Service, webhookSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || webhookSecret == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read webhook body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeSignatureInvalid, "missing Stripe-Signature header"))
			return
		}
		if err := stripewebhook.VerifySignature(webhookSecret, sigHeader, payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload"))
			return
		}
		if event.ID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook event missing id"))
			return
		}

		if err := svc.Process(r.Context(), &event, payload); err != nil {
			// Signature checked out, so acknowledge the delivery. The event
			// was marked failed and stays claimable for the next retry.
			logg.Error(r.Context(), "stripe webhook processing failed", err)
		}
		responses.WriteSuccess(w, map[string]string{"received": "true"})
	}
}
