package prompts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/promptlens/promptlens-backend/pkg/db/models"
)

func setupPromptsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	table := `
CREATE TABLE IF NOT EXISTS saved_prompts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  prompt_text TEXT NOT NULL,
  model TEXT NOT NULL,
  image_hash TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(table).Error)
	return db
}

func TestRepository_CreateAndListByUser(t *testing.T) {
	db := setupPromptsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()
	otherID := uuid.New()

	for i := range 3 {
		created, err := repo.Create(ctx, CreatePromptDTO{
			UserID:     userID,
			PromptText: fmt.Sprintf("prompt %d", i),
			Model:      "gpt-4o-mini",
			ImageHash:  fmt.Sprintf("hash-%d", i),
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		// Distinct created_at values so the newest-first order is testable.
		require.NoError(t, db.Model(&models.SavedPrompt{}).
			Where("id = ?", created.ID).
			UpdateColumn("created_at", time.Now().UTC().Add(time.Duration(i)*time.Second)).Error)
	}
	_, err := repo.Create(ctx, CreatePromptDTO{
		UserID:     otherID,
		PromptText: "someone else's prompt",
		Model:      "gpt-4o-mini",
		ImageHash:  "hash-x",
	})
	require.NoError(t, err)

	rows, total, err := repo.ListByUser(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 3)
	assert.Equal(t, "prompt 2", rows[0].PromptText)
	assert.Equal(t, "prompt 0", rows[2].PromptText)
}

func TestRepository_ListByUserPaginates(t *testing.T) {
	db := setupPromptsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	userID := uuid.New()

	for i := range 5 {
		_, err := repo.Create(ctx, CreatePromptDTO{
			UserID:     userID,
			PromptText: fmt.Sprintf("prompt %d", i),
			Model:      "gpt-4o-mini",
			ImageHash:  "hash",
		})
		require.NoError(t, err)
	}

	rows, total, err := repo.ListByUser(ctx, userID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, rows, 2)

	empty, total, err := repo.ListByUser(ctx, uuid.New(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, empty)
}
