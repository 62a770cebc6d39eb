// Package clitest wires a CLI application over a temporary SQLite database.
package clitest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mylife/adapter/cli"
	internalApp "github.com/felixgeelhaar/mylife/internal/app"
	"github.com/felixgeelhaar/mylife/pkg/config"
)

// Config returns a local-mode config with signing and actor secrets set.
func Config(t testing.TB) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                   "test",
		SQLitePath:               filepath.Join(t.TempDir(), "mylife.db"),
		EntitlementAppID:         "mylife",
		EntitlementSigningSecret: "signing-secret",
		ActorIdentitySecret:      "actor-secret",
		EntitlementCacheTTL:      time.Minute,
		AccessMaxAttempts:        6,
		AccessBaseDelay:          5 * time.Minute,
		AccessMaxDelay:           24 * time.Hour,
		AccessSweepDefaultSize:   10,
		AccessSweepMaxSize:       100,
		GitHubPermission:         "pull",
		GitHubTimeout:            5 * time.Second,
	}
}

// NewContainer builds a container over cfg and installs it as the global
// CLI app. Both are released on cleanup.
func NewContainer(t testing.TB, cfg *config.Config) *internalApp.Container {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := internalApp.NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	cli.SetApp(cli.NewApp(c))
	t.Cleanup(func() {
		cli.SetApp(nil)
		c.Close()
	})
	return c
}

// Run executes cmd's RunE with args and returns what it printed.
func Run(t testing.TB, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}
