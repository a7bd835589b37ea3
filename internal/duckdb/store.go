// Package duckdb persists enriched events in a DuckDB database.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tinytelemetry/lotus-agent/internal/duckdb/migrate"
)

// Store manages the DuckDB database connection.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens or creates a DuckDB database and applies the schema.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("duckdb: create directory: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", dbPath, err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: migrate: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file, empty for in-memory stores.
func (s *Store) Path() string { return s.dbPath }
