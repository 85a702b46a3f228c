package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// sqlitePragmas are applied on every connection through the DSN:
//   - WAL so display reads don't block a sync pass
//   - busy_timeout to wait out lock contention
//   - synchronous=NORMAL, durable enough under WAL
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens (creating if needed) the action database at path and
// brings its schema up to date. path must be a file, not ":memory:".
func OpenSQLite(path string, opts ...Option) (*SQLActionStore, error) {
	dsn := sqliteDSN(path)

	if err := Migrate(DriverSQLite, dsn, MigrateUp); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLActionStore(db, dialectSQLite, opts), nil
}
