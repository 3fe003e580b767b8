package prompts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
)

// CreatePromptDTO holds the data persisted for one generated prompt.
type CreatePromptDTO struct {
	UserID     uuid.UUID
	PromptText string
	Model      string
	ImageHash  string
}

// Repository persists the prompts generated for signed-in users.
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

// Create inserts a saved prompt row and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreatePromptDTO) (*models.SavedPrompt, error) {
	row := &models.SavedPrompt{
		ID:         uuid.New(),
		UserID:     dto.UserID,
		PromptText: dto.PromptText,
		Model:      dto.Model,
		ImageHash:  dto.ImageHash,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// ListByUser returns the user's prompts newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SavedPrompt, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.SavedPrompt{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var rows []models.SavedPrompt
	err = r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
