package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUsageMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_usage_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no usage migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS usage_counters",
		"PRIMARY KEY (subject_type, subject_key, period_key)",
		"CHECK (used_count >= 0)",
		"CREATE TABLE IF NOT EXISTS usage_events",
		"CREATE INDEX IF NOT EXISTS idx_usage_events_subject",
		"DROP TABLE IF EXISTS usage_counters",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
