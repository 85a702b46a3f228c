package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPostgresActionStore wraps an already migrated postgres handle.
func NewPostgresActionStore(db *sql.DB, opts ...Option) *SQLActionStore {
	return newSQLActionStore(db, dialectPostgres, opts)
}

// OpenPostgres connects to dsn, migrates the schema and returns a store.
func OpenPostgres(dsn string, opts ...Option) (*SQLActionStore, error) {
	if err := Migrate(DriverPostgres, dsn, MigrateUp); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return NewPostgresActionStore(db, opts...), nil
}
