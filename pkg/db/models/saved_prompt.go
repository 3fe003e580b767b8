package models

import (
	"time"

	"github.com/google/uuid"
)

// SavedPrompt is a generated prompt retained for an authenticated user.
// Guest generations are never persisted.
type SavedPrompt struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_saved_prompts_user_created"`
	PromptText string    `gorm:"column:prompt_text;not null"`
	Model      string    `gorm:"column:model;not null"`
	ImageHash  string    `gorm:"column:image_hash"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index:idx_saved_prompts_user_created,sort:desc"`
}
