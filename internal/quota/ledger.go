package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	pkgerrors "github.com/promptlens/promptlens-backend/pkg/errors"
)

// EventTypeAnalysis is recorded for each successful metered generation.
const EventTypeAnalysis = "analysis"

// ConsumeParams carries one consumption attempt.
type ConsumeParams struct {
	Subject   Subject
	PeriodKey string
	// Limit is the plan ceiling for the period; nil means unlimited.
	Limit     *int
	Plan      enums.PlanCode
	EventType string
	RequestID string
}

// Ledger owns the usage_counters and usage_events tables. All writes go
// through single conditional statements so correctness holds across
// replicas; there is no in-process locking or caching.
type Ledger struct {
	db *gorm.DB
}

// NewLedger binds the ledger to the provided GORM connection.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database connection required")
	}
	return &Ledger{db: db}, nil
}

// Peek returns the current used count for the subject's period, zero when no
// counter row exists yet.
func (l *Ledger) Peek(ctx context.Context, subject Subject, periodKey string) (int, error) {
	if subject.IsZero() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "metering subject is required")
	}
	var counter models.UsageCounter
	err := l.db.WithContext(ctx).
		Where("subject_type = ? AND subject_key = ? AND period_key = ?",
			subject.Type, subject.Key, periodKey).
		First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return counter.UsedCount, nil
}

// TryConsume atomically claims one unit of quota. It returns false without
// error when the period's ceiling is already reached. A usage event is
// appended in the same transaction as the counter write, so the ledger and
// the audit trail can never diverge.
func (l *Ledger) TryConsume(ctx context.Context, params ConsumeParams) (bool, error) {
	if params.Subject.IsZero() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "metering subject is required")
	}
	if params.PeriodKey == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "period key is required")
	}
	if params.Limit != nil && *params.Limit <= 0 {
		return false, nil
	}

	consumed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if params.Limit == nil {
			consumed, err = l.incrementUnlimited(tx, params)
		} else {
			consumed, err = l.incrementBelow(tx, params, *params.Limit)
		}
		if err != nil {
			return err
		}
		if !consumed {
			return nil
		}
		return appendEvent(tx, params)
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// incrementUnlimited upserts the counter with an unconditional increment.
func (l *Ledger) incrementUnlimited(tx *gorm.DB, params ConsumeParams) (bool, error) {
	counter := models.UsageCounter{
		SubjectType: params.Subject.Type,
		SubjectKey:  params.Subject.Key,
		PeriodKey:   params.PeriodKey,
		UsedCount:   1,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subject_type"}, {Name: "subject_key"}, {Name: "period_key"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"used_count": gorm.Expr("usage_counters.used_count + 1"),
		}),
	}).Create(&counter).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// incrementBelow first races to insert the period's counter at 1; if another
// writer got there first, a single conditional UPDATE claims the unit only
// while used_count is still below the ceiling.
func (l *Ledger) incrementBelow(tx *gorm.DB, params ConsumeParams, limit int) (bool, error) {
	counter := models.UsageCounter{
		SubjectType: params.Subject.Type,
		SubjectKey:  params.Subject.Key,
		PeriodKey:   params.PeriodKey,
		UsedCount:   1,
	}
	insert := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subject_type"}, {Name: "subject_key"}, {Name: "period_key"},
		},
		DoNothing: true,
	}).Create(&counter)
	if insert.Error != nil {
		return false, insert.Error
	}
	if insert.RowsAffected == 1 {
		return true, nil
	}

	update := tx.Model(&models.UsageCounter{}).
		Where("subject_type = ? AND subject_key = ? AND period_key = ? AND used_count < ?",
			params.Subject.Type, params.Subject.Key, params.PeriodKey, limit).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if update.Error != nil {
		return false, update.Error
	}
	return update.RowsAffected == 1, nil
}

func appendEvent(tx *gorm.DB, params ConsumeParams) error {
	eventType := params.EventType
	if eventType == "" {
		eventType = EventTypeAnalysis
	}
	event := models.UsageEvent{
		ID:          uuid.New(),
		SubjectType: params.Subject.Type,
		SubjectKey:  params.Subject.Key,
		PeriodKey:   params.PeriodKey,
		Plan:        params.Plan,
		EventType:   eventType,
		RequestID:   params.RequestID,
	}
	return tx.Create(&event).Error
}
