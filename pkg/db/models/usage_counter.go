package models

import (
	"time"

	"github.com/promptlens/promptlens-backend/pkg/enums"
)

// UsageCounter is the quota ledger row for one subject in one calendar month.
// The composite primary key partitions periods without any rollover job; the
// conditional increment in the quota repository is the only writer.
type UsageCounter struct {
	SubjectType enums.SubjectType `gorm:"column:subject_type;primaryKey"`
	SubjectKey  string            `gorm:"column:subject_key;primaryKey"`
	PeriodKey   string            `gorm:"column:period_key;primaryKey"`
	UsedCount   int               `gorm:"column:used_count;not null;default:0"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
