package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptlens/promptlens-backend/internal/prompts"
	"github.com/promptlens/promptlens-backend/internal/quota"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/metrics"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

// AnalyzeRequest carries one image-to-prompt generation attempt.
type AnalyzeRequest struct {
	ImageDataURL string `json:"image" validate:"required"`
	Style        string `json:"style"`
}

// Actor identifies who is being metered. UserID nil means a guest keyed by
// client IP.
type Actor struct {
	UserID   *uuid.UUID
	Plan     enums.PlanCode
	ClientIP string
}

// UsageSnapshot reports the period state after the attempt. Limit and
// Remaining are nil on unlimited plans.
type UsageSnapshot struct {
	PeriodKey string `json:"period"`
	Used      int    `json:"used"`
	Limit     *int   `json:"limit"`
	Remaining *int   `json:"remaining"`
}

// AnalyzeResponse is the generated prompt plus the usage state.
type AnalyzeResponse struct {
	Prompt string        `json:"prompt"`
	Model  string        `json:"model"`
	Saved  bool          `json:"saved"`
	Usage  UsageSnapshot `json:"usage"`
}

// QuotaDetails rides on QuotaExceeded errors so clients can render upgrade
// prompts without a second request.
type QuotaDetails struct {
	Used      int            `json:"used"`
	Limit     int            `json:"limit"`
	PeriodKey string         `json:"period"`
	Plan      enums.PlanCode `json:"plan"`
}

type describeClient interface {
	DescribeImage(ctx context.Context, imageDataURL, style string) (string, error)
	Model() string
}

type usageLedger interface {
	TryConsume(ctx context.Context, params quota.ConsumeParams) (bool, error)
	Peek(ctx context.Context, subject quota.Subject, periodKey string) (int, error)
}

type promptWriter interface {
	Create(ctx context.Context, dto prompts.CreatePromptDTO) (*models.SavedPrompt, error)
}

// Service runs the metered image-to-prompt operation.
type Service interface {
	Analyze(ctx context.Context, actor Actor, req AnalyzeRequest) (*AnalyzeResponse, error)
	Usage(ctx context.Context, actor Actor) (*UsageSnapshot, error)
}

// ServiceParams bundles the analysis dependencies.
type ServiceParams struct {
	Ledger   usageLedger
	Provider describeClient
	Prompts  promptWriter
	Catalog  *subscriptions.Catalog
	Guest    config.GuestConfig
	Logger   *logger.Logger
	Metrics  *metrics.APIMetrics
}

type service struct {
	ledger   usageLedger
	provider describeClient
	prompts  promptWriter
	catalog  *subscriptions.Catalog
	guestCfg config.GuestConfig
	logger   *logger.Logger
	metrics  *metrics.APIMetrics
	now      func() time.Time
}

// NewService validates the dependencies and builds the analysis service.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage ledger required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "analysis provider required")
	}
	if params.Prompts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "prompts repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	return &service{
		ledger:   params.Ledger,
		provider: params.Provider,
		prompts:  params.Prompts,
		catalog:  params.Catalog,
		guestCfg: params.Guest,
		logger:   params.Logger,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

func (s *service) Analyze(ctx context.Context, actor Actor, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if strings.TrimSpace(req.ImageDataURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image is required")
	}

	subject, plan, limit, err := s.resolveSubject(actor)
	if err != nil {
		return nil, err
	}
	periodKey := quota.PeriodKey(s.now().UTC())

	granted, err := s.ledger.TryConsume(ctx, quota.ConsumeParams{
		Subject:   subject,
		PeriodKey: periodKey,
		Limit:     limit,
		Plan:      plan,
		EventType: quota.EventTypeAnalysis,
		RequestID: logger.RequestIDFromContext(ctx),
	})
	if err != nil {
		s.countConsume(subject, "error")
		return nil, err
	}
	if !granted {
		s.countConsume(subject, "denied")
		used, peekErr := s.ledger.Peek(ctx, subject, periodKey)
		if peekErr != nil {
			used = 0
		}
		ceiling := 0
		if limit != nil {
			ceiling = *limit
		}
		return nil, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "monthly generation limit reached").
			WithDetails(QuotaDetails{Used: used, Limit: ceiling, PeriodKey: periodKey, Plan: plan})
	}
	s.countConsume(subject, "granted")

	started := s.now()
	prompt, err := s.provider.DescribeImage(ctx, req.ImageDataURL, req.Style)
	if err != nil {
		// The unit stays consumed: the attempt reached the provider.
		s.observe("error", s.now().Sub(started))
		return nil, err
	}
	s.observe("success", s.now().Sub(started))

	saved := false
	if actor.UserID != nil {
		_, err := s.prompts.Create(ctx, prompts.CreatePromptDTO{
			UserID:     *actor.UserID,
			PromptText: prompt,
			Model:      s.provider.Model(),
			ImageHash:  hashImage(req.ImageDataURL),
		})
		if err != nil {
			// Losing the history row is not worth failing a paid generation.
			if s.logger != nil {
				s.logger.Error(ctx, "persist saved prompt", err)
			}
		} else {
			saved = true
		}
	}

	usage, err := s.snapshot(ctx, subject, limit, periodKey)
	if err != nil {
		return nil, err
	}
	return &AnalyzeResponse{
		Prompt: prompt,
		Model:  s.provider.Model(),
		Saved:  saved,
		Usage:  *usage,
	}, nil
}

func (s *service) Usage(ctx context.Context, actor Actor) (*UsageSnapshot, error) {
	subject, _, limit, err := s.resolveSubject(actor)
	if err != nil {
		return nil, err
	}
	periodKey := quota.PeriodKey(s.now().UTC())
	return s.snapshot(ctx, subject, limit, periodKey)
}

// resolveSubject maps the actor onto a metering subject and its plan
// ceiling. Guests are keyed by a salted hash of the client IP so raw
// addresses never reach the ledger.
func (s *service) resolveSubject(actor Actor) (quota.Subject, enums.PlanCode, *int, error) {
	if actor.UserID != nil {
		plan := actor.Plan
		catalogPlan, ok := s.catalog.Plan(plan)
		if !ok {
			return quota.Subject{}, "", nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan")
		}
		var limit *int
		if catalogPlan.MonthlyQuota != nil {
			ceiling := *catalogPlan.MonthlyQuota
			limit = &ceiling
		}
		return quota.UserSubject(*actor.UserID), plan, limit, nil
	}

	ip := strings.TrimSpace(actor.ClientIP)
	if ip == "" {
		return quota.Subject{}, "", nil, pkgerrors.New(pkgerrors.CodeValidation, "client address required for guest metering")
	}
	limit := s.guestCfg.FreeQuota
	return quota.GuestSubject(security.HashGuestKey(s.guestCfg.Salt, ip)), enums.PlanFree, &limit, nil
}

func (s *service) snapshot(ctx context.Context, subject quota.Subject, limit *int, periodKey string) (*UsageSnapshot, error) {
	used, err := s.ledger.Peek(ctx, subject, periodKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read usage")
	}
	usage := &UsageSnapshot{PeriodKey: periodKey, Used: used}
	if limit != nil {
		ceiling := *limit
		remaining := ceiling - used
		if remaining < 0 {
			remaining = 0
		}
		usage.Limit = &ceiling
		usage.Remaining = &remaining
	}
	return usage, nil
}

func (s *service) countConsume(subject quota.Subject, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncQuotaConsume(string(subject.Type), outcome)
}

func (s *service) observe(outcome string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveAnalysis(outcome, duration)
}

func hashImage(dataURL string) string {
	sum := sha256.Sum256([]byte(dataURL))
	return hex.EncodeToString(sum[:])
}
