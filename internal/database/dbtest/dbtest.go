// Package dbtest provides migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"pdv_backend/internal/config"
	"pdv_backend/internal/database"
)

// New returns an empty, migrated sqlite database that is closed when the test ends.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Connect(ctx, config.Database{Driver: config.DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
