package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// newMigrator builds a migrator over the open connection. The returned
// migrator must not be closed since that would close the shared *sql.DB;
// the returned source is closed by the caller instead.
func (s *Store) newMigrator() (*migrate.Migrate, func() error, error) {
	src, err := iofs.New(migrationFiles, "migrations/"+s.driver)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load migrations: %w", err)
	}

	var driver database.Driver
	switch s.driver {
	case constants.DriverPostgres:
		driver, err = pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
	default:
		driver, err = sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	}
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("store: create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("store: create migrator: %w", err)
	}
	return m, src.Close, nil
}

// Migrate applies all pending migrations. If there are no new migrations to
// apply it returns nil.
func (s *Store) Migrate() error {
	m, closeSource, err := s.newMigrator()
	if err != nil {
		return err
	}
	defer closeSource()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: run migrations up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("store: read migration version: %w", err)
	}
	s.logger.Info("database schema up to date",
		zap.String("op", "store.Migrate"),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// MigrateDown rolls back all migrations. If there are no migrations to roll
// back it returns nil.
func (s *Store) MigrateDown() error {
	m, closeSource, err := s.newMigrator()
	if err != nil {
		return err
	}
	defer closeSource()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: run migrations down: %w", err)
	}
	return nil
}
