// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/migrations"
)

// Open returns a fresh SQLite connection with the schema applied.
// The database lives in t.TempDir and is closed on cleanup.
func Open(t testing.TB) database.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "mylife.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn, "")
	require.NoError(t, err)
	return conn
}
