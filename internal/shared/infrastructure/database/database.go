package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver identifies a database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// IsValid reports whether d is a supported backend.
func (d Driver) IsValid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

// DetectDriver picks a backend from a connection string.
// An empty string selects SQLite so a fresh install runs without any setup.
func DetectDriver(url string) Driver {
	switch {
	case url == "":
		return DriverSQLite
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return DriverSQLite
	}
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(url, ext) {
			return DriverSQLite
		}
	}
	return DriverPostgres
}

// Config holds database connection settings.
type Config struct {
	// Driver forces a backend. Empty or "auto" detects it from URL.
	Driver Driver

	// URL is the PostgreSQL connection string.
	URL string

	// SQLitePath is the database file used by the SQLite backend.
	// Defaults to ~/.mylife/data.db.
	SQLitePath string

	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

type connector func(ctx context.Context, cfg Config) (Connection, error)

var connectors = map[Driver]connector{}

// Register installs the connection factory for a driver. Driver packages call
// it from init, so importing them for side effects enables the backend.
func Register(driver Driver, fn func(ctx context.Context, cfg Config) (Connection, error)) {
	connectors[driver] = fn
}

// NewConnection opens a connection for the configured backend.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	fn, ok := connectors[driver]
	if !ok {
		return nil, fmt.Errorf("database driver %s is not registered", driver)
	}
	return fn(ctx, cfg)
}

// DefaultSQLitePath returns ~/.mylife/data.db, falling back to the working directory.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mylife", "data.db")
}

// EnsureDirectory creates the parent directory of path.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
