package database

import (
	stdsql "database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrations ship inside the binary, so a deployed process never depends on
// SQL files sitting next to it.
//
//go:embed migrations
var migrationsFS embed.FS

// runMigrations brings the schema up to date. Applied migrations are a no-op,
// so every process runs this unconditionally at boot.
func runMigrations(db *stdsql.DB) error {
	if err := checkMigrationsPresent(); err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "vodrag", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// m.Close would also close the database driver, and with it the caller's
	// *sql.DB handle; only the source may be closed here.
	if err := source.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}
	return nil
}

// checkMigrationsPresent guards against a build that embedded an empty
// migrations directory, which migrate would silently treat as up to date.
func checkMigrationsPresent() error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			return nil
		}
	}
	return fmt.Errorf("no migration files embedded in binary")
}
