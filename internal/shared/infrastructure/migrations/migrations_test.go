package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database/sqlite"
)

func TestRun_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "mylife.db"),
	})
	require.NoError(t, err)
	defer conn.Close()

	applied, err := Run(ctx, conn, "")
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	for _, table := range []string{"preferences", "entitlement_cache", "entitlement_revocations", "access_jobs", "outbox"} {
		var name string
		err := conn.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	applied, err = Run(ctx, conn, "")
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}
