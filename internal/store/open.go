package store

import "fmt"

// Open builds the ActionStore for a configured driver. For sqlite and file
// dsn is a path; for postgres it is a connection string.
func Open(driver, dsn string, opts ...Option) (ActionStore, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(dsn, opts...)
	case DriverPostgres:
		return OpenPostgres(dsn, opts...)
	case DriverFile:
		return NewFileActionStore(dsn, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// DSN maps a configured location to the connection string Migrate and
// SchemaVersion expect.
func DSN(driver, location string) string {
	if driver == DriverSQLite {
		return sqliteDSN(location)
	}
	return location
}
