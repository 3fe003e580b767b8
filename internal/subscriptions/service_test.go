package subscriptions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/internal/users"
	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
)

type gormRunner struct {
	conn *gorm.DB
}

func (g gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.conn.WithContext(ctx).Transaction(fn)
}

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	usersTable := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'subscriber',
  status TEXT NOT NULL DEFAULT 'active',
  plan TEXT NOT NULL DEFAULT 'free',
  google_sub TEXT,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	subscriptionsTable := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  plan TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  monthly_quota INTEGER,
  price_cents INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL,
  renews_at DATETIME NOT NULL,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	auditTable := `
CREATE TABLE IF NOT EXISTS admin_audit_logs (
  id TEXT PRIMARY KEY,
  actor_id TEXT NOT NULL,
  action TEXT NOT NULL,
  target_user_id TEXT,
  metadata TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(usersTable).Error)
	require.NoError(t, db.Exec(subscriptionsTable).Error)
	require.NoError(t, db.Exec(auditTable).Error)
	return db
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := setupSubscriptionsTestDB(t)
	svc, err := NewService(ServiceParams{
		DB:      gormRunner{conn: db},
		Repo:    NewRepository(db),
		Catalog: NewCatalog(testPricing()),
	})
	require.NoError(t, err)
	return svc, db
}

func seedUser(t *testing.T, db *gorm.DB, plan enums.PlanCode) uuid.UUID {
	t.Helper()
	id := uuid.New()
	user := &models.User{
		ID:           id,
		Email:        id.String() + "@example.com",
		PasswordHash: "hash",
		Name:         "Test User",
		Role:         enums.RoleSubscriber,
		Status:       enums.UserStatusActive,
		Plan:         plan,
	}
	require.NoError(t, db.Create(user).Error)
	return id
}

func activeCount(t *testing.T, db *gorm.DB, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		Count(&count).Error)
	return count
}

func TestSetPlanKeepsSingleActiveRow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanFree)

	_, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanFree})
	require.NoError(t, err)

	sub, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanPro})
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPro, sub.Plan)
	require.NotNil(t, sub.MonthlyQuota)
	assert.Equal(t, 500, *sub.MonthlyQuota)
	assert.EqualValues(t, 900, sub.PriceCents)

	assert.EqualValues(t, 1, activeCount(t, db, userID))

	// Denormalized plan column follows the transition.
	user, err := users.NewRepository(db).FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPro, user.Plan)
}

func TestSetPlanUnlimitedHasNoQuota(t *testing.T) {
	svc, db := newTestService(t)
	userID := seedUser(t, db, enums.PlanFree)

	sub, err := svc.SetPlan(context.Background(), SetPlanParams{
		UserID: userID,
		Plan:   enums.PlanUnlimited,
		Cycle:  enums.BillingCycleAnnual,
	})
	require.NoError(t, err)
	assert.Nil(t, sub.MonthlyQuota)
	assert.EqualValues(t, 18240, sub.PriceCents)
	assert.Equal(t, sub.StartedAt.AddDate(1, 0, 0), sub.RenewsAt)
}

func TestSetPlanRejectsUnknownPlan(t *testing.T) {
	svc, db := newTestService(t)
	userID := seedUser(t, db, enums.PlanFree)

	_, err := svc.SetPlan(context.Background(), SetPlanParams{
		UserID: userID,
		Plan:   enums.PlanCode("platinum"),
	})
	require.Error(t, err)
}

func TestSetPlanByAdminWritesAuditRow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanFree)
	adminID := uuid.New()

	_, err := svc.SetPlan(ctx, SetPlanParams{
		UserID:       userID,
		Plan:         enums.PlanPro,
		ActorAdminID: &adminID,
	})
	require.NoError(t, err)

	var rows []models.AdminAuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, adminID, rows[0].ActorID)
	assert.Equal(t, AuditActionPlanSet, rows[0].Action)
	require.NotNil(t, rows[0].TargetUserID)
	assert.Equal(t, userID, *rows[0].TargetUserID)
}

func TestSetPlanSelfServiceWritesNoAuditRow(t *testing.T) {
	svc, db := newTestService(t)
	userID := seedUser(t, db, enums.PlanFree)

	_, err := svc.SetPlan(context.Background(), SetPlanParams{UserID: userID, Plan: enums.PlanFree})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AdminAuditLog{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestGetOrCreateActiveSelfHeals(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanFree)

	sub, err := svc.GetOrCreateActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanFree, sub.Plan)
	assert.EqualValues(t, 1, activeCount(t, db, userID))

	again, err := svc.GetOrCreateActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
}

func TestChangePlanSelfRejectsUpgrade(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanFree)

	_, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanFree})
	require.NoError(t, err)

	_, err = svc.ChangePlanSelf(ctx, userID, enums.PlanPro)
	require.Error(t, err)
	assert.EqualValues(t, 1, activeCount(t, db, userID))
}

func TestChangePlanSelfEqualRankIsNoOp(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanPro)

	current, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanPro})
	require.NoError(t, err)

	same, err := svc.ChangePlanSelf(ctx, userID, enums.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, current.ID, same.ID, "equal-rank change must not create history")
}

func TestChangePlanSelfDowngrade(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanUnlimited)

	_, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanUnlimited})
	require.NoError(t, err)

	sub, err := svc.ChangePlanSelf(ctx, userID, enums.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanPro, sub.Plan)
	assert.EqualValues(t, 1, activeCount(t, db, userID))
}

func TestCancelForcesFree(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := seedUser(t, db, enums.PlanPro)

	_, err := svc.SetPlan(ctx, SetPlanParams{UserID: userID, Plan: enums.PlanPro})
	require.NoError(t, err)

	sub, err := svc.Cancel(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanFree, sub.Plan)

	user, err := users.NewRepository(db).FindByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PlanFree, user.Plan)
}
