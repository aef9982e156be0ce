package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pdv_backend/internal/config"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit_price NUMERIC(14,4) NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGSERIAL PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		total NUMERIC(14,2) NOT NULL,
		amount_tendered NUMERIC(14,2) NOT NULL,
		change_due NUMERIC(14,2) NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '01',
		items JSONB NOT NULL
	);`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_status TEXT NOT NULL DEFAULT 'PENDING';`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_protocol TEXT;`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_detail TEXT;`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_number BIGINT;`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_attempts INTEGER NOT NULL DEFAULT 0;`,
	`ALTER TABLE sales ADD COLUMN IF NOT EXISTS fiscal_updated_at BIGINT NOT NULL DEFAULT 0;`,
	`CREATE INDEX IF NOT EXISTS sales_fiscal_status_idx ON sales (fiscal_status);`,
	`CREATE TABLE IF NOT EXISTS fiscal_sequences (
		series INTEGER PRIMARY KEY,
		last_number BIGINT NOT NULL
	);`,
}

// Decimal columns are TEXT in sqlite so values round-trip without float rounding.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit_price TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL,
		total TEXT NOT NULL,
		amount_tendered TEXT NOT NULL,
		change_due TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '01',
		items TEXT NOT NULL,
		fiscal_status TEXT NOT NULL DEFAULT 'PENDING',
		fiscal_protocol TEXT,
		fiscal_detail TEXT,
		fiscal_number INTEGER,
		fiscal_attempts INTEGER NOT NULL DEFAULT 0,
		fiscal_updated_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS sales_fiscal_status_idx ON sales (fiscal_status);`,
	`CREATE TABLE IF NOT EXISTS fiscal_sequences (
		series INTEGER PRIMARY KEY,
		last_number INTEGER NOT NULL
	);`,
}

// Migrate creates the schema required by the PDV backend. Statements are
// idempotent so it runs on every boot.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	schema := postgresSchema
	if db.DriverName() == config.DriverSQLite {
		schema = sqliteSchema
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
