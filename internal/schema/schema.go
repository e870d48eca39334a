// Package schema bundles the SQL migrations for the tables listed in
// spec.md §6 and exposes them both to golang-migrate (for production
// upgrades) and to test scaffolding (for fast schema bring-up against a
// disposable Postgres).
package schema

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var FS embed.FS

// InitialSchema returns the up-migration SQL verbatim, for tests that
// want to apply the full schema in one Exec rather than driving
// golang-migrate.
func InitialSchema() ([]byte, error) {
	return FS.ReadFile("migrations/0001_init.up.sql")
}

// Migrate runs every pending up-migration against db using
// golang-migrate's Postgres driver and an iofs source built from the
// embedded migrations directory.
func Migrate(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("schema: postgres driver: %w", err)
	}

	src, err := iofs.New(FS, "migrations")
	if err != nil {
		return fmt.Errorf("schema: iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("schema: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("schema: migrate up: %w", err)
	}
	return nil
}
