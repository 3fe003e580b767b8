package admin

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/audit"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/internal/users"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/db"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/security"
)

// Audit action names recorded by the admin surface.
const (
	AuditActionUserCreate = "user.create"
	AuditActionRoleSet    = "user.role.set"
	AuditActionStatusSet  = "user.status.set"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planService interface {
	SetPlan(ctx context.Context, params subscriptions.SetPlanParams) (*models.Subscription, error)
}

// Actor identifies the staff member performing an admin operation.
type Actor struct {
	ID   uuid.UUID
	Role enums.Role
}

// CreateUserParams is the input for a staff-provisioned account.
type CreateUserParams struct {
	Email    string
	Password string
	Name     string
	Role     enums.Role
	Plan     enums.PlanCode
}

// Service is the staff-facing user management surface. Every mutation
// appends an audit row in the same transaction.
type Service interface {
	ListUsers(ctx context.Context, actor Actor, limit, offset int) ([]users.UserDTO, int64, error)
	CreateUser(ctx context.Context, actor Actor, params CreateUserParams) (*users.UserDTO, error)
	GetUser(ctx context.Context, actor Actor, userID uuid.UUID) (*users.UserDTO, error)
	SetUserRole(ctx context.Context, actor Actor, userID uuid.UUID, role enums.Role) (*users.UserDTO, error)
	SetUserStatus(ctx context.Context, actor Actor, userID uuid.UUID, status enums.UserStatus) (*users.UserDTO, error)
	SetUserPlan(ctx context.Context, actor Actor, userID uuid.UUID, plan enums.PlanCode) (*models.Subscription, error)
	ListAuditLog(ctx context.Context, actor Actor, limit, offset int) ([]models.AdminAuditLog, int64, error)
}

// ServiceParams bundles the admin service dependencies.
type ServiceParams struct {
	DB            txRunner
	Users         *users.Repository
	Audit         *audit.Repository
	Subscriptions planService
	Password      config.PasswordConfig
	Logger        *logger.Logger
}

type service struct {
	db            txRunner
	users         *users.Repository
	audit         *audit.Repository
	subscriptions planService
	password      config.PasswordConfig
	logger        *logger.Logger
}

// NewService validates the dependencies and builds the admin service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service required")
	}
	return &service{
		db:            params.DB,
		users:         params.Users,
		audit:         params.Audit,
		subscriptions: params.Subscriptions,
		password:      params.Password,
		logger:        params.Logger,
	}, nil
}

func (s *service) CreateUser(ctx context.Context, actor Actor, params CreateUserParams) (*users.UserDTO, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	role := params.Role
	if role == "" {
		role = enums.RoleSubscriber
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	// Only a superadmin may provision staff accounts.
	if role.IsStaff() && actor.Role != enums.RoleSuperadmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient privileges to grant staff roles")
	}
	plan := params.Plan
	if plan == "" {
		plan = enums.PlanFree
	}
	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan")
	}

	hash, err := security.HashPassword(params.Password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *models.User
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		created, err = users.NewRepository(tx).Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: hash,
			Name:         strings.TrimSpace(params.Name),
			Role:         &role,
			Plan:         &plan,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		return audit.NewRepository(tx).Append(ctx, audit.Entry{
			ActorID:      actor.ID,
			Action:       AuditActionUserCreate,
			TargetUserID: &created.ID,
			Metadata: map[string]any{
				"email": email,
				"role":  role.String(),
				"plan":  plan.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	// Seed the subscription outside the creation transaction; the plan
	// service records its own audit trail.
	actorID := actor.ID
	if _, err := s.subscriptions.SetPlan(ctx, subscriptions.SetPlanParams{
		UserID:       created.ID,
		Plan:         plan,
		ActorAdminID: &actorID,
	}); err != nil {
		return nil, err
	}

	s.logAction(ctx, actor, created.ID, AuditActionUserCreate)
	return users.FromModel(created), nil
}

func (s *service) ListUsers(ctx context.Context, actor Actor, limit, offset int) ([]users.UserDTO, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	rows, total, err := s.users.List(ctx, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	out := make([]users.UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *users.FromModel(&rows[i]))
	}
	return out, total, nil
}

func (s *service) GetUser(ctx context.Context, actor Actor, userID uuid.UUID) (*users.UserDTO, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	user, err := s.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}

func (s *service) SetUserRole(ctx context.Context, actor Actor, userID uuid.UUID, role enums.Role) (*users.UserDTO, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if actor.ID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own role")
	}

	target, err := s.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(actor, target); err != nil {
		return nil, err
	}
	if target.Role == role {
		return users.FromModel(target), nil
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txUsers := users.NewRepository(tx)
		// The last superadmin cannot be demoted; the count is taken inside
		// the transaction so concurrent demotions cannot both pass.
		if target.Role == enums.RoleSuperadmin && role != enums.RoleSuperadmin {
			total, err := txUsers.CountByRole(ctx, enums.RoleSuperadmin)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count superadmins")
			}
			if total <= 1 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot demote the last superadmin")
			}
		}
		if err := txUsers.UpdateRole(ctx, userID, role); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
		}
		return audit.NewRepository(tx).Append(ctx, audit.Entry{
			ActorID:      actor.ID,
			Action:       AuditActionRoleSet,
			TargetUserID: &userID,
			Metadata: map[string]any{
				"from": target.Role.String(),
				"to":   role.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	target.Role = role
	s.logAction(ctx, actor, userID, AuditActionRoleSet)
	return users.FromModel(target), nil
}

func (s *service) SetUserStatus(ctx context.Context, actor Actor, userID uuid.UUID, status enums.UserStatus) (*users.UserDTO, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if actor.ID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot change your own status")
	}

	target, err := s.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(actor, target); err != nil {
		return nil, err
	}
	if target.Status == status {
		return users.FromModel(target), nil
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := users.NewRepository(tx).UpdateStatus(ctx, userID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update status")
		}
		return audit.NewRepository(tx).Append(ctx, audit.Entry{
			ActorID:      actor.ID,
			Action:       AuditActionStatusSet,
			TargetUserID: &userID,
			Metadata: map[string]any{
				"from": target.Status.String(),
				"to":   status.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	target.Status = status
	s.logAction(ctx, actor, userID, AuditActionStatusSet)
	return users.FromModel(target), nil
}

// SetUserPlan delegates to the plan service, which records the audit row as
// part of its own transaction.
func (s *service) SetUserPlan(ctx context.Context, actor Actor, userID uuid.UUID, plan enums.PlanCode) (*models.Subscription, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	target, err := s.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(actor, target); err != nil {
		return nil, err
	}

	actorID := actor.ID
	return s.subscriptions.SetPlan(ctx, subscriptions.SetPlanParams{
		UserID:       userID,
		Plan:         plan,
		ActorAdminID: &actorID,
	})
}

func (s *service) ListAuditLog(ctx context.Context, actor Actor, limit, offset int) ([]models.AdminAuditLog, int64, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	rows, total, err := s.audit.List(ctx, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit log")
	}
	return rows, total, nil
}

func (s *service) loadTarget(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *service) logAction(ctx context.Context, actor Actor, target uuid.UUID, action string) {
	if s.logger == nil {
		return
	}
	lctx := s.logger.WithFields(ctx, map[string]any{
		"actor_id":  actor.ID.String(),
		"target_id": target.String(),
		"action":    action,
	})
	s.logger.Info(lctx, "admin action applied")
}

func requireStaff(actor Actor) error {
	if actor.ID == uuid.Nil || !actor.Role.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "staff role required")
	}
	return nil
}

// guardTarget enforces the staff hierarchy: admins can never act on a
// superadmin account.
func guardTarget(actor Actor, target *models.User) error {
	if actor.Role == enums.RoleAdmin && target.Role == enums.RoleSuperadmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient privileges for this target")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
