// Package migrations applies the embedded schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/lib/pq" // database/sql driver for goose on PostgreSQL
	"github.com/pressly/goose/v3"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var embedded embed.FS

// sqlDBProvider is implemented by connections that expose their *sql.DB.
type sqlDBProvider interface {
	DB() *sql.DB
}

// Run brings the schema up to date for conn. PostgreSQL migrations open a
// short-lived database/sql handle on url because the pool is pgx-native.
func Run(ctx context.Context, conn database.Connection, url string) (int, error) {
	switch conn.Driver() {
	case database.DriverSQLite:
		p, ok := conn.(sqlDBProvider)
		if !ok {
			return 0, fmt.Errorf("sqlite connection does not expose *sql.DB")
		}
		return up(ctx, goose.DialectSQLite3, p.DB(), "sqlite")
	case database.DriverPostgres:
		db, err := sql.Open("postgres", url)
		if err != nil {
			return 0, fmt.Errorf("open postgres for migrations: %w", err)
		}
		defer db.Close()
		return up(ctx, goose.DialectPostgres, db, "postgres")
	default:
		return 0, fmt.Errorf("no migrations for driver %s", conn.Driver())
	}
}

func up(ctx context.Context, dialect goose.Dialect, db *sql.DB, dir string) (int, error) {
	fsys, err := fs.Sub(embedded, dir)
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(results), nil
}
