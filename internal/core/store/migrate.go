package store

import (
	"context"
	"fmt"
	"strings"
)

// Timestamps are stored as unix seconds so both drivers share one schema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS webhook_events (
		webhook_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		processed_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_webhook_events_processed ON webhook_events(processed_at);`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		credits INTEGER NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS credit_purchases (
		id {{serial}},
		user_id TEXT NOT NULL,
		credits_purchased INTEGER NOT NULL,
		amount_paid_cents BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		payment_id TEXT NOT NULL UNIQUE,
		purchase_date BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_credit_purchases_user ON credit_purchases(user_id, purchase_date);`,
	`CREATE TABLE IF NOT EXISTS system_logs (
		id {{serial}},
		level TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id TEXT,
		metadata TEXT,
		created_at BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_system_logs_created ON system_logs(created_at);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == driverPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	for _, stmt := range schemaStatements {
		stmt = strings.ReplaceAll(stmt, "{{serial}}", serial)
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
