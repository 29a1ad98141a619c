package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply on top of schema.sql.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add transcriptions.provider_transcript_id",
		sql:   `ALTER TABLE transcriptions ADD COLUMN IF NOT EXISTS provider_transcript_id text`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transcriptions' AND column_name = 'provider_transcript_id')`,
	},
	{
		// Provider job ids are unique per owner, not globally.
		name: "add per-user provider transcript index",
		sql: `DROP INDEX IF EXISTS uq_transcriptions_provider_transcript_id;
CREATE UNIQUE INDEX IF NOT EXISTS uq_transcriptions_user_provider ON transcriptions (user_id, provider_transcript_id)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uq_transcriptions_user_provider')
			AND NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uq_transcriptions_provider_transcript_id')`,
	},
	{
		name: "add transcriptions.search_vector",
		sql: `ALTER TABLE transcriptions ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (to_tsvector('simple', coalesce(title, '') || ' ' || coalesce(content, ''))) STORED;
CREATE INDEX IF NOT EXISTS idx_transcriptions_search ON transcriptions USING gin (search_vector)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transcriptions_search')`,
	},
	{
		name:  "add payment_transactions.credited_at",
		sql:   `ALTER TABLE payment_transactions ADD COLUMN IF NOT EXISTS credited_at timestamptz`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'payment_transactions' AND column_name = 'credited_at')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. A failed apply is returned as a
// *MigrationError; callers treat it as fatal because queries depend on
// these columns existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart scribe-engine.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
