package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

type Direction string

const (
	MigrateUp   Direction = "up"
	MigrateDown Direction = "down"
)

// Migrate applies the embedded schema migrations for a SQL driver.
//
// It opens its own handle on dsn and closes it when done, so it never
// competes with the single connection held by an open SQLite store.
func Migrate(driver, dsn string, dir Direction) error {
	m, err := newMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	switch dir {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	default:
		return fmt.Errorf("migrate: unknown direction %q", dir)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s %s: %w", driver, dir, err)
	}
	return nil
}

// SchemaVersion reports the applied migration version; 0 means none.
func SchemaVersion(driver, dsn string) (uint, bool, error) {
	m, err := newMigrator(driver, dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("schema version: %w", err)
	}
	return v, dirty, nil
}

func newMigrator(driver, dsn string) (*migrate.Migrate, error) {
	var (
		dir     string
		sqlName string
	)
	switch driver {
	case DriverSQLite:
		dir, sqlName = "migrations/sqlite", "sqlite"
	case DriverPostgres:
		dir, sqlName = "migrations/postgres", "postgres"
	default:
		return nil, fmt.Errorf("migrate: driver %q has no schema", driver)
	}

	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: load migrations: %w", err)
	}

	db, err := sql.Open(sqlName, dsn)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("migrate: open database: %w", err)
	}

	var drv database.Driver
	switch driver {
	case DriverSQLite:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverPostgres:
		drv, err = migratepg.WithInstance(db, &migratepg.Config{})
	}
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, fmt.Errorf("migrate: database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}
