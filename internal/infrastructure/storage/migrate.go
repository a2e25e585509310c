package storage

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"NewsRelay/internal/config"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationResult reports the schema version after Migrate.
type MigrationResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies every pending migration on its own connection.
func Migrate(cfg config.DatabaseConfig) (MigrationResult, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return MigrationResult{}, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, MigrationURL(cfg))
	if err != nil {
		return MigrationResult{}, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	res := MigrationResult{Changed: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationResult{}, fmt.Errorf("run migrations: %w", err)
		}
		res.Changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("read migration version: %w", err)
	}
	res.Version = version
	res.Dirty = dirty
	return res, nil
}

// MigrationURL converts the configured DSN into a golang-migrate database URL.
func MigrationURL(cfg config.DatabaseConfig) string {
	if Dialect(cfg.Driver) == DialectSQLite {
		if strings.HasPrefix(cfg.DSN, "sqlite://") {
			return cfg.DSN
		}
		return "sqlite://" + strings.TrimPrefix(cfg.DSN, "file:")
	}
	return cfg.DSN
}
