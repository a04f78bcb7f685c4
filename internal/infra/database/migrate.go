package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// EnsureSchema creates the engine's tables when missing. The unique index
// on (lead_id, provider_id) enforces the at-most-one-record-per-pair
// invariant at the storage layer, not just in code.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS leads (
			id                    TEXT PRIMARY KEY,
			city                  TEXT NOT NULL,
			service_type          TEXT NOT NULL,
			preferred_time_window TEXT NOT NULL DEFAULT '',
			budget_range          TEXT NOT NULL DEFAULT '',
			notes_snippet         TEXT NOT NULL DEFAULT '',
			client_name           TEXT NOT NULL,
			client_phone          TEXT NOT NULL,
			client_email          TEXT NOT NULL DEFAULT '',
			exact_address         TEXT NOT NULL DEFAULT '',
			revealed              BOOLEAN NOT NULL DEFAULT FALSE,
			created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS providers (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			phone      TEXT NOT NULL,
			opted_out  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_providers_phone ON providers (phone)`,

		`CREATE TABLE IF NOT EXISTS unlock_records (
			id                       UUID PRIMARY KEY,
			lead_id                  TEXT NOT NULL REFERENCES leads (id),
			provider_id              TEXT NOT NULL REFERENCES providers (id),
			state                    TEXT NOT NULL,
			payment_link_ref         TEXT,
			payment_link_url         TEXT,
			payment_confirmation_ref TEXT,
			idempotency_key          UUID NOT NULL,
			price_cents              INTEGER NOT NULL,
			currency                 TEXT NOT NULL,
			ttl_hours                INTEGER NOT NULL,
			created_at               TIMESTAMPTZ NOT NULL,
			updated_at               TIMESTAMPTZ NOT NULL,
			ttl_expires_at           TIMESTAMPTZ NOT NULL,
			last_sent_at             TIMESTAMPTZ,
			revealed_at              TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_unlock_lead_provider
			ON unlock_records (lead_id, provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_unlock_payment_ref
			ON unlock_records (payment_link_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_unlock_provider_state
			ON unlock_records (provider_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_unlock_ttl
			ON unlock_records (state, ttl_expires_at)`,

		`CREATE TABLE IF NOT EXISTS effect_outbox (
			id          UUID PRIMARY KEY,
			lead_id     TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'PENDING',
			attempts    INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_effect_outbox_status
			ON effect_outbox (status, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}

	log.Println("✅ Schema ensured (leads, providers, unlock_records, effect_outbox)")
	return nil
}
