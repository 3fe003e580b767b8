package controllers

import (
	"net/http"

	"github.com/promptlens/promptlens-backend/api/middleware"
	"github.com/promptlens/promptlens-backend/api/responses"
	"github.com/promptlens/promptlens-backend/api/validators"
	"github.com/promptlens/promptlens-backend/internal/payments/razorpay"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

// CheckoutOrderRequest asks for a provider order ahead of payment.
type CheckoutOrderRequest struct {
	Plan     string `json:"plan" validate:"required"`
	Cycle    string `json:"cycle"`
	Currency string `json:"currency"`
}

// CheckoutVerifyRequest carries the browser's post-payment callback.
type CheckoutVerifyRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// CheckoutOrder creates the Razorpay order backing an upgrade purchase.
func CheckoutOrder(svc razorpay.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body CheckoutOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := enums.ParsePlanCode(body.Plan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
			return
		}

		params := razorpay.CheckoutParams{UserID: userID, Plan: plan}
		if body.Cycle != "" {
			cycle, err := enums.ParseBillingCycle(body.Cycle)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle"))
				return
			}
			params.Cycle = cycle
		}
		if body.Currency != "" {
			currency, err := enums.ParseCurrency(body.Currency)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
			params.Currency = currency
		}

		order, err := svc.CreateCheckout(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// CheckoutVerify reconciles the payment callback against the stored order.
func CheckoutVerify(svc razorpay.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body CheckoutVerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyPayment(r.Context(), razorpay.VerifyParams{
			UserID:    userID,
			OrderID:   body.OrderID,
			PaymentID: body.PaymentID,
			Signature: body.Signature,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
