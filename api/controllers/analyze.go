package controllers

import (
	"net/http"

	"github.com/promptlens/promptlens-backend/api/middleware"
	"github.com/promptlens/promptlens-backend/api/responses"
	"github.com/promptlens/promptlens-backend/api/validators"
	"github.com/promptlens/promptlens-backend/internal/analysis"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

// Analyze runs the metered image-to-prompt operation. The route is mounted
// behind OptionalAuth: signed-in users are metered by account, anonymous
// callers by a hashed client address.
func Analyze(svc analysis.Service, trustProxy bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analysis service unavailable"))
			return
		}

		var body analysis.AnalyzeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := analysis.Actor{ClientIP: middleware.ClientIP(r, trustProxy)}
		if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
			actor.UserID = &userID
			actor.Plan = middleware.PlanFromContext(r.Context())
		}

		result, err := svc.Analyze(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UsageReport returns the caller's current period consumption.
func UsageReport(svc analysis.Service, trustProxy bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analysis service unavailable"))
			return
		}

		actor := analysis.Actor{ClientIP: middleware.ClientIP(r, trustProxy)}
		if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
			actor.UserID = &userID
			actor.Plan = middleware.PlanFromContext(r.Context())
		}

		usage, err := svc.Usage(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, usage)
	}
}
