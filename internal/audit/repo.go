package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
)

// Entry captures one privileged action for the append-only trail.
type Entry struct {
	ActorID      uuid.UUID
	Action       string
	TargetUserID *uuid.UUID
	Metadata     map[string]any
}

// Repository persists admin audit log rows. Rows are append-only; there are
// deliberately no update or delete operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Append writes one audit row.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	var metadata json.RawMessage
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadata = raw
	}
	row := models.AdminAuditLog{
		ID:           uuid.New(),
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		TargetUserID: entry.TargetUserID,
		Metadata:     metadata,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// List returns audit rows newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.AdminAuditLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.AdminAuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.AdminAuditLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
