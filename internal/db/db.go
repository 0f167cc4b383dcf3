package db

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"
)

// DB is the status history store.
type DB struct {
	*sql.DB
	path string
}

// pragmas are applied by the driver to every new connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

func dsn(path string) string {
	return path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")
}

// OpenDB opens (or creates) the sqlite database at path, applies pragmas and
// runs the embedded migrations.
func OpenDB(path string) (*DB, error) {
	db, err := openNoMigrate(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openNoMigrate opens the database leaving the schema untouched, for the
// migrate subcommand.
func openNoMigrate(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
