package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBillingMigrationContainsSchemas(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_billing_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no billing migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS billing_orders",
		"CHECK (status IN ('created', 'paid', 'failed'))",
		"CREATE TABLE IF NOT EXISTS billing_profiles",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_billing_profiles_user_provider",
		"CREATE TABLE IF NOT EXISTS billing_subscriptions",
		"CREATE TABLE IF NOT EXISTS billing_webhook_events",
		"event_id TEXT PRIMARY KEY",
		"DROP TABLE IF EXISTS billing_webhook_events",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
