package controllers

import (
	"net/http"

	"github.com/promptlens/promptlens-backend/api/middleware"
	"github.com/promptlens/promptlens-backend/api/responses"
	"github.com/promptlens/promptlens-backend/api/validators"
	"github.com/promptlens/promptlens-backend/internal/prompts"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	maxPromptLength = 10000
)

// PromptsList returns the caller's saved prompts, newest first.
func PromptsList(repo *prompts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompts repository unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		limit, offset := pagination(r)
		rows, total, err := repo.ListByUser(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list prompts"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"prompts": rows,
			"total":   total,
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// CreatePromptRequest saves a client-edited prompt to the user's history.
type CreatePromptRequest struct {
	PromptText string `json:"prompt_text" validate:"required"`
	Model      string `json:"model"`
	ImageHash  string `json:"image_hash"`
}

// PromptsCreate persists a prompt the client wants to keep.
func PromptsCreate(repo *prompts.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompts repository unavailable"))
			return
		}

		userID, ok := middleware.UserUUIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body CreatePromptRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		row, err := repo.Create(r.Context(), prompts.CreatePromptDTO{
			UserID:     userID,
			PromptText: validators.SanitizeString(body.PromptText, maxPromptLength),
			Model:      validators.SanitizeString(body.Model, 64),
			ImageHash:  validators.SanitizeString(body.ImageHash, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save prompt"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, row)
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		limit = defaultPageSize
	}
	offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		offset = 0
	}
	return limit, offset
}
