package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/quota"
	"github.com/promptlens/promptlens-backend/internal/users"
	pkgAuth "github.com/promptlens/promptlens-backend/pkg/auth"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/db"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/googleid"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service defines the behavior needed by the auth controller.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	GoogleSignIn(ctx context.Context, req GoogleSignInRequest) (*AuthResponse, error)
	Snapshot(ctx context.Context, userID uuid.UUID) (*SnapshotResponse, error)
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByGoogleSub(ctx context.Context, sub string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	LinkGoogleSub(ctx context.Context, id uuid.UUID, sub string) error
}

type planService interface {
	GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, rawToken string) (*googleid.Identity, error)
}

type usageReader interface {
	Peek(ctx context.Context, subject quota.Subject, periodKey string) (int, error)
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users          userRepository
	Subscriptions  planService
	Google         googleVerifier
	Usage          usageReader
	PasswordConfig config.PasswordConfig
	JWTConfig      config.JWTConfig
	Logger         *logger.Logger
}

type service struct {
	users         userRepository
	subscriptions planService
	google        googleVerifier
	usage         usageReader
	passwordCfg   config.PasswordConfig
	jwtCfg        config.JWTConfig
	logger        *logger.Logger
	now           func() time.Time
}

// NewService validates the dependencies and builds the auth service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	if params.Usage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage reader required")
	}
	return &service{
		users:         params.Users,
		subscriptions: params.Subscriptions,
		google:        params.Google,
		usage:         params.Usage,
		passwordCfg:   params.PasswordConfig,
		jwtCfg:        params.JWTConfig,
		logger:        params.Logger,
		now:           time.Now,
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	// Seed the free-plan subscription row alongside the account.
	if _, err := s.subscriptions.GetOrCreateActive(ctx, user.ID); err != nil {
		return nil, err
	}

	return s.issue(ctx, user, false)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	// A malformed or empty stored hash (google-only accounts) reads as bad
	// credentials, not an internal error.
	valid, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if user.Status == enums.UserStatusSuspended {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account suspended")
	}

	return s.issue(ctx, user, false)
}

func (s *service) GoogleSignIn(ctx context.Context, req GoogleSignInRequest) (*AuthResponse, error) {
	if s.google == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "google sign-in is not configured")
	}
	identity, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.resolveGoogleUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user.Status == enums.UserStatusSuspended {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account suspended")
	}

	if _, err := s.subscriptions.GetOrCreateActive(ctx, user.ID); err != nil {
		return nil, err
	}
	return s.issue(ctx, user, isNew)
}

func (s *service) resolveGoogleUser(ctx context.Context, identity *googleid.Identity) (*models.User, bool, error) {
	user, err := s.users.FindByGoogleSub(ctx, identity.Subject)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup google account")
	}

	// First sign-in with this Google account. Link it to an existing email
	// match, otherwise provision a fresh passwordless account.
	user, err = s.users.FindByEmail(ctx, identity.Email)
	if err == nil {
		if err := s.users.LinkGoogleSub(ctx, user.ID, identity.Subject); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link google account")
		}
		sub := identity.Subject
		user.GoogleSub = &sub
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = identity.Email
	}
	sub := identity.Subject
	created, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:     identity.Email,
		Name:      name,
		GoogleSub: &sub,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "account already exists")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	return created, true, nil
}

func (s *service) Snapshot(ctx context.Context, userID uuid.UUID) (*SnapshotResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	sub, err := s.subscriptions.GetOrCreateActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	periodKey := quota.PeriodKey(now)
	used, err := s.usage.Peek(ctx, quota.UserSubject(userID), periodKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read usage")
	}

	usage := &UsageDTO{PeriodKey: periodKey, Used: used}
	if sub.MonthlyQuota != nil {
		limit := *sub.MonthlyQuota
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		usage.Limit = &limit
		usage.Remaining = &remaining
	}

	return &SnapshotResponse{
		User: users.FromModel(user),
		Subscription: &SubscriptionDTO{
			Plan:         sub.Plan,
			Status:       sub.Status,
			MonthlyQuota: sub.MonthlyQuota,
			PriceCents:   sub.PriceCents,
			StartedAt:    sub.StartedAt,
			RenewsAt:     sub.RenewsAt,
		},
		Usage: usage,
	}, nil
}

func (s *service) issue(ctx context.Context, user *models.User, isNew bool) (*AuthResponse, error) {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	user.LastLoginAt = &now

	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Plan:   user.Plan,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &AuthResponse{
		AccessToken: accessToken,
		User:        users.FromModel(user),
		IsNewUser:   isNew,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
